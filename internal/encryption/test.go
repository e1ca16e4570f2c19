package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"wfs-go/internal/wfs"
)

// testHeader marks values produced by TestEncryptor.
var testHeader = []byte("WFSENC\x01")

// testMask scrambles the body so plaintext never shows in stored bytes.
const testMask byte = 0x5a

// ErrWrongPassphrase is returned by TestEncryptor.Unlock for a passphrase
// other than the one given to Setup.
var ErrWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor is a deterministic, keyless stand-in for AgeEncryptor.
// Encrypt writes a fixed header followed by the masked input. Unlock only
// checks the passphrase when Setup was called.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
	setUp      bool
}

var _ wfs.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passphrase, e.setUp = passphrase, true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if err := mask(bufio.NewReader(r), bw); err != nil {
		return err
	}
	return bw.Flush()
}

func (e *TestEncryptor) Unlock(passphrase string) (wfs.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setUp && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext reverses TestEncryptor.Encrypt.
type TestDecryptionContext struct{}

var _ wfs.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return errors.New("invalid test encryption header")
	}
	bw := bufio.NewWriter(w)
	if err := mask(bufio.NewReader(r), bw); err != nil {
		return err
	}
	return bw.Flush()
}

func mask(r io.ByteReader, w io.ByteWriter) error {
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading data: %w", err)
		}
		if err := w.WriteByte(b ^ testMask); err != nil {
			return fmt.Errorf("writing data: %w", err)
		}
	}
}

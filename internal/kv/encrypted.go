package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"wfs-go/internal/wfs"
)

// ErrLocked is returned by EncryptedKV.Get when no decryption context was supplied.
var ErrLocked = errors.New("encrypted storage is locked; a passphrase is required to read")

// EncryptedKV encrypts every value before it reaches inner. Writes need only
// the public key; reads need the DecryptionContext obtained from Unlock.
type EncryptedKV struct {
	inner wfs.KV
	enc   wfs.Encryptor
	dc    wfs.DecryptionContext
}

var _ wfs.KV = (*EncryptedKV)(nil)

// NewEncryptedKV wraps inner. dc may be nil for write-only use.
func NewEncryptedKV(inner wfs.KV, enc wfs.Encryptor, dc wfs.DecryptionContext) *EncryptedKV {
	return &EncryptedKV{inner: inner, enc: enc, dc: dc}
}

func (e *EncryptedKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return data, ok, err
	}
	if e.dc == nil {
		return nil, false, ErrLocked
	}
	var out bytes.Buffer
	if err := e.dc.Decrypt(bytes.NewReader(data), &out); err != nil {
		return nil, false, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return out.Bytes(), true, nil
}

func (e *EncryptedKV) Set(ctx context.Context, key string, value []byte) error {
	var out bytes.Buffer
	if err := e.enc.Encrypt(bytes.NewReader(value), &out); err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return e.inner.Set(ctx, key, out.Bytes())
}

func (e *EncryptedKV) Remove(ctx context.Context, key string) error {
	return e.inner.Remove(ctx, key)
}

func (e *EncryptedKV) Close() error { return closeInner(e.inner) }

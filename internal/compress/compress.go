// Package compress provides the byte codecs applied to values before they
// reach the KV substrate.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses and decompresses whole values.
type Codec interface {
	// Name identifies the codec in stored headers and configuration.
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// New returns the codec registered under name. "" and "none" select Nop.
func New(name string) (Codec, error) {
	switch name {
	case "", "none":
		return Nop{}, nil
	case "gzip":
		return Gzip{}, nil
	case "lz4":
		return LZ4{}, nil
	case "brotli":
		return Brotli{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %q", name)
	}
}

// Nop passes values through unchanged.
type Nop struct{}

func (Nop) Name() string                       { return "none" }
func (Nop) Encode(data []byte) ([]byte, error) { return data, nil }
func (Nop) Decode(data []byte) ([]byte, error) { return data, nil }

// Gzip uses compress/gzip at the default level.
type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

func (Gzip) Encode(data []byte) ([]byte, error) {
	return encode(data, func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })
}

func (Gzip) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer r.Close()
	return readAll(r, "gzip")
}

// LZ4 uses the lz4 frame format.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Encode(data []byte) ([]byte, error) {
	return encode(data, func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) })
}

func (LZ4) Decode(data []byte) ([]byte, error) {
	return readAll(lz4.NewReader(bytes.NewReader(data)), "lz4")
}

// Brotli uses brotli at its default quality.
type Brotli struct{}

func (Brotli) Name() string { return "brotli" }

func (Brotli) Encode(data []byte) ([]byte, error) {
	return encode(data, func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) })
}

func (Brotli) Decode(data []byte) ([]byte, error) {
	return readAll(brotli.NewReader(bytes.NewReader(data)), "brotli")
}

func encode(data []byte, newWriter func(io.Writer) io.WriteCloser) ([]byte, error) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finishing compressed stream: %w", err)
	}
	return buf.Bytes(), nil
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}
	return out, nil
}

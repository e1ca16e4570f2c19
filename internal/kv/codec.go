package kv

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"wfs-go/internal/compress"
	"wfs-go/internal/wfs"
)

// codecMagic starts every value written by CodecKV. It is followed by one
// length byte and the codec name.
var codecMagic = []byte("WFSZ")

// CodecKV compresses values with codec before they reach inner. Values are
// tagged with the codec's name, so data written under another codec (or none)
// stays readable after the configuration changes.
type CodecKV struct {
	inner wfs.KV
	codec compress.Codec
}

var _ wfs.KV = (*CodecKV)(nil)

func NewCodecKV(inner wfs.KV, codec compress.Codec) *CodecKV {
	return &CodecKV{inner: inner, codec: codec}
}

func (c *CodecKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.inner.Get(ctx, key)
	if err != nil || !ok {
		return data, ok, err
	}
	name, body, tagged := splitCodecHeader(data)
	if !tagged {
		return data, true, nil
	}
	codec := c.codec
	if name != codec.Name() {
		if codec, err = compress.New(name); err != nil {
			return nil, false, fmt.Errorf("decoding %s: %w", key, err)
		}
	}
	out, err := codec.Decode(body)
	if err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, true, nil
}

func (c *CodecKV) Set(ctx context.Context, key string, value []byte) error {
	body, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	name := c.codec.Name()
	buf := make([]byte, 0, len(codecMagic)+1+len(name)+len(body))
	buf = append(buf, codecMagic...)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	buf = append(buf, body...)
	return c.inner.Set(ctx, key, buf)
}

func (c *CodecKV) Remove(ctx context.Context, key string) error {
	return c.inner.Remove(ctx, key)
}

func (c *CodecKV) Close() error { return closeInner(c.inner) }

func splitCodecHeader(data []byte) (name string, body []byte, ok bool) {
	if !bytes.HasPrefix(data, codecMagic) || len(data) < len(codecMagic)+1 {
		return "", nil, false
	}
	n := int(data[len(codecMagic)])
	start := len(codecMagic) + 1
	if len(data) < start+n {
		return "", nil, false
	}
	return string(data[start : start+n]), data[start+n:], true
}

func closeInner(inner wfs.KV) error {
	if c, ok := inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

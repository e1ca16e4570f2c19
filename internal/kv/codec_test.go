package kv_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/compress"
	"wfs-go/internal/kv"
)

func TestCodecKV_Contract(t *testing.T) {
	for _, name := range []string{"gzip", "lz4", "brotli"} {
		t.Run(name, func(t *testing.T) {
			codec, err := compress.New(name)
			require.NoError(t, err)
			runKVContract(t, kv.NewCodecKV(kv.NewMemoryKV(), codec))
		})
	}
}

func TestCodecKV_StoresCompressedBytes(t *testing.T) {
	ctx := context.Background()
	inner := kv.NewMemoryKV()
	store := kv.NewCodecKV(inner, compress.Gzip{})

	value := bytes.Repeat([]byte(`{"lastUpdated":"2024-01-15T10:30:00Z"}`), 500)
	require.NoError(t, store.Set(ctx, "drafts/T-1/s", value))

	raw, _, err := inner.Get(ctx, "drafts/T-1/s")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("WFSZ\x04gzip")))
	assert.Less(t, len(raw), len(value)/4)
}

func TestCodecKV_ReadsValuesFromOtherCodecs(t *testing.T) {
	ctx := context.Background()
	inner := kv.NewMemoryKV()

	require.NoError(t, inner.Set(ctx, "plain", []byte("written before compression")))
	require.NoError(t, kv.NewCodecKV(inner, compress.LZ4{}).Set(ctx, "lz4", []byte("lz4 value")))

	store := kv.NewCodecKV(inner, compress.Brotli{})

	got, ok, err := store.Get(ctx, "plain")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "written before compression", string(got))

	got, _, err = store.Get(ctx, "lz4")
	require.NoError(t, err)
	assert.Equal(t, "lz4 value", string(got))
}

func TestCodecKV_UnknownCodecIsAnError(t *testing.T) {
	ctx := context.Background()
	inner := kv.NewMemoryKV()
	require.NoError(t, inner.Set(ctx, "k", []byte("WFSZ\x04zstdpayload")))

	_, _, err := kv.NewCodecKV(inner, compress.Gzip{}).Get(ctx, "k")
	assert.Error(t, err)
}

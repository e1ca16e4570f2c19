package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/wfs"
)

// runKVContract checks the behaviour every substrate must share.
func runKVContract(t *testing.T, store wfs.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "drafts/missing/section")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "drafts/T-1/quotation", []byte(`{"snapshots":[]}`)))
		got, ok, err := store.Get(ctx, "drafts/T-1/quotation")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"snapshots":[]}`, string(got))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "syncq/jobs", []byte("one")))
		require.NoError(t, store.Set(ctx, "syncq/jobs", []byte("two")))
		got, _, err := store.Get(ctx, "syncq/jobs")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("index and nested keys coexist", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "reminders/_index", []byte("index")))
		require.NoError(t, store.Set(ctx, "reminders/_index/sec", []byte("nested")))
		a, _, err := store.Get(ctx, "reminders/_index")
		require.NoError(t, err)
		b, _, err := store.Get(ctx, "reminders/_index/sec")
		require.NoError(t, err)
		assert.Equal(t, "index", string(a))
		assert.Equal(t, "nested", string(b))
	})

	t.Run("escaped ids", func(t *testing.T) {
		key := "versions/a%2Fb/quote"
		require.NoError(t, store.Set(ctx, key, []byte("x")))
		got, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x", string(got))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "drafts/T-9/s", []byte("x")))
		require.NoError(t, store.Remove(ctx, "drafts/T-9/s"))
		_, ok, err := store.Get(ctx, "drafts/T-9/s")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, store.Remove(ctx, "drafts/T-9/s"))
	})

	t.Run("returned bytes are private", func(t *testing.T) {
		value := []byte("original")
		require.NoError(t, store.Set(ctx, "k/private", value))
		value[0] = 'X'
		got, _, err := store.Get(ctx, "k/private")
		require.NoError(t, err)
		assert.Equal(t, "original", string(got))
		got[0] = 'Y'
		again, _, err := store.Get(ctx, "k/private")
		require.NoError(t, err)
		assert.Equal(t, "original", string(again))
	})
}

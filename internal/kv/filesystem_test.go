package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/kv"
)

func TestFileSystemKV_Contract(t *testing.T) {
	store, err := kv.NewFileSystemKV(t.TempDir())
	require.NoError(t, err)
	runKVContract(t, store)
}

func TestFileSystemKV_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := kv.NewFileSystemKV(root)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "drafts/T-1/quotation", []byte("x")))

	_, err = os.Stat(filepath.Join(root, "drafts", "T-1", "quotation.v"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "drafts", "T-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileSystemKV_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewFileSystemKV(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside", "drafts/../../x", "drafts//x", "./x"} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, store.Set(ctx, key, []byte("x")))
			_, _, err := store.Get(ctx, key)
			assert.Error(t, err)
		})
	}
}

func TestFileSystemKV_ValidateSetup(t *testing.T) {
	root := t.TempDir()
	store, err := kv.NewFileSystemKV(filepath.Join(root, "store"))
	require.NoError(t, err)
	assert.NoError(t, store.ValidateSetup())

	require.NoError(t, os.RemoveAll(filepath.Join(root, "store")))
	assert.Error(t, store.ValidateSetup())

	_, err = kv.NewFileSystemKV("")
	assert.Error(t, err)
}

package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/database"
	"wfs-go/internal/database/migrations"
)

func newTestSQLiteKV(t *testing.T) *database.SQLiteKV {
	t.Helper()
	kv, err := database.NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSQLiteKV_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	_, ok, err := kv.Get(ctx, "drafts/T-1/quotation")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "drafts/T-1/quotation", []byte(`{"snapshots":[]}`)))
	got, ok, err := kv.Get(ctx, "drafts/T-1/quotation")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"snapshots":[]}`, string(got))

	require.NoError(t, kv.Set(ctx, "drafts/T-1/quotation", []byte("v2")))
	got, _, err = kv.Get(ctx, "drafts/T-1/quotation")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	require.NoError(t, kv.Remove(ctx, "drafts/T-1/quotation"))
	_, ok, err = kv.Get(ctx, "drafts/T-1/quotation")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, kv.Remove(ctx, "never/existed"), "removing a missing key is not an error")
}

func TestSQLiteKV_EmptyValueIsPresent(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	require.NoError(t, kv.Set(ctx, "k", nil))
	got, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSQLiteKV_Keys(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)
	for _, k := range []string{"versions/T-1/quote", "drafts/T-2/a", "drafts/T-1/b", "drafts/_index"} {
		require.NoError(t, kv.Set(ctx, k, []byte("x")))
	}

	keys, err := kv.Keys(ctx, "drafts/")
	require.NoError(t, err)
	assert.Equal(t, []string{"drafts/T-1/b", "drafts/T-2/a", "drafts/_index"}, keys)
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wfs.db")

	kv, err := database.NewSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "syncq/jobs", []byte(`{"items":[]}`)))
	require.NoError(t, kv.Close())

	kv, err = database.NewSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	assert.NoError(t, migrations.CheckDBMigrationStatus(kv.DB()))
	got, ok, err := kv.Get(ctx, "syncq/jobs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"items":[]}`, string(got))
}

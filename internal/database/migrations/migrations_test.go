package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateUp(db))

	for _, table := range []string{"kv", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s was not created", table)
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)
		assert.ErrorIs(t, CheckDBMigrationStatus(db), ErrNoVersion)
	})

	t.Run("migrated database is current", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, MigrateUp(db))
		assert.NoError(t, CheckDBMigrationStatus(db))

		version, dirty, err := Version(db)
		require.NoError(t, err)
		latest, err := LatestVersion()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, latest, version)
		assert.Equal(t, uint(2), latest)
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))
	assert.NoError(t, CheckDBMigrationStatus(db))
}

func TestSchema_KeyIsPrimary(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, MigrateUp(db))

	_, err := db.Exec("INSERT INTO kv (key, value) VALUES ('drafts/T-1/quotation', x'7b7d')")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO kv (key, value) VALUES ('drafts/T-1/quotation', x'7b7d')")
	assert.Error(t, err, "duplicate key must violate the primary key")
}

// openTestDB opens an in-memory SQLite database pinned to one connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

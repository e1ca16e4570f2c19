package database

import (
	"fmt"
	"os"
	"path/filepath"

	"wfs-go/internal/config"
	"wfs-go/internal/wfs"
)

// Store is a KV that holds a connection.
type Store interface {
	wfs.KV
	Close() error
}

// NewStoreFromConfig creates the SQL-backed KV named by cfg.Type.
// "sqlite" stores wfs.db under DataDir; "sqlite-memory" is an in-memory SQLite.
func NewStoreFromConfig(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite storage")
		}
		if err := ensureDir(cfg.DataDir); err != nil {
			return nil, err
		}
		return NewSQLiteKV(filepath.Join(cfg.DataDir, "wfs.db"))
	case "sqlite-memory":
		return NewSQLiteKV(":memory:")
	case "postgres":
		return NewPostgresKV(cfg.PostgresDSN, cfg.PostgresTable)
	default:
		return nil, fmt.Errorf("unknown database storage type: %s", cfg.Type)
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

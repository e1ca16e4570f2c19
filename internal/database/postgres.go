package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"wfs-go/internal/wfs"
)

const (
	// DefaultPostgresTable is used when no table name is configured.
	DefaultPostgresTable = "wfs_kv"

	postgresInitTimeout = 5 * time.Second
)

// ErrEmptyDSN is returned by NewPostgresKV for a blank connection string.
var ErrEmptyDSN = errors.New("postgres dsn is empty")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresKV implements wfs.KV on a Postgres table. The connection is opened
// and the table created on first use.
type PostgresKV struct {
	dsn    string
	table  string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ wfs.KV = (*PostgresKV)(nil)

// NewPostgresKV creates a PostgresKV. table defaults to DefaultPostgresTable.
func NewPostgresKV(dsn, table string) (*PostgresKV, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	if table == "" {
		table = DefaultPostgresTable
	}
	return &PostgresKV{dsn: dsn, table: table, openDB: sql.Open}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", quoteIdentifier(p.table))
	var value []byte
	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key: %w", err)
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	if err := p.ensureReady(ctx); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, quoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}

func (p *PostgresKV) Remove(ctx context.Context, key string) error {
	if err := p.ensureReady(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", quoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	return nil
}

func (p *PostgresKV) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresKV) ensureReady(ctx context.Context) error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = fmt.Errorf("opening postgres: %w", err)
			return
		}
		initCtx, cancel := context.WithTimeout(ctx, postgresInitTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value BYTEA NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(p.table))
		if _, err := db.ExecContext(initCtx, query); err != nil {
			_ = db.Close()
			p.initErr = fmt.Errorf("creating table %s: %w", p.table, err)
			return
		}
		p.db = db
	})
	return p.initErr
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
    name TEXT PRIMARY KEY,
    value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres is a KV kept in a PostgreSQL table.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres wraps an open connection. Call EnsureSchema before first use.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

// OpenPostgres connects to url, verifies the connection and creates the table.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := NewPostgres(db)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the kv table. Safe to call repeatedly.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create kv schema: %w", pgError(err))
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.DB.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE name = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, pgError(err))
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO kv_store (name, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, pgError(err))
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}

// pgError prefixes server errors with their condition name.
func pgError(err error) error {
	var perr *pq.Error
	if errors.As(err, &perr) {
		return fmt.Errorf("%s: %w", perr.Code.Name(), err)
	}
	return err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id   TEXT PRIMARY KEY,
	data JSONB NOT NULL
)`

// Postgres stores snapshots in a documents table, one row per document.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Load(ctx context.Context, id string) (json.RawMessage, error) {
	var snapshot json.RawMessage
	err := p.pool.QueryRow(ctx, `SELECT data FROM documents WHERE id = $1`, id).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	return snapshot, nil
}

func (p *Postgres) Save(ctx context.Context, id string, snapshot json.RawMessage) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO documents (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		id, snapshot)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

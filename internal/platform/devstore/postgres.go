package devstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema files for the Postgres store.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PGStore keeps each collection in its own JSONB table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func tableName(c Collection) (string, error) {
	for _, known := range Collections {
		if known == c {
			return "devstore_" + string(c), nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", c)
}

func (s *PGStore) List(ctx context.Context, c Collection) ([]json.RawMessage, error) {
	tbl, err := tableName(c)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT doc FROM `+tbl+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, c Collection, id string) (json.RawMessage, error) {
	tbl, err := tableName(c)
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = s.pool.QueryRow(ctx, `SELECT doc FROM `+tbl+` WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", c, id, err)
	}
	return doc, nil
}

func (s *PGStore) Insert(ctx context.Context, c Collection, id string, doc json.RawMessage) error {
	tbl, err := tableName(c)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+tbl+` (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, []byte(doc))
	if err != nil {
		return fmt.Errorf("insert %s: %w", c, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, c Collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error) {
	tbl, err := tableName(c)
	if err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var old []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM `+tbl+` WHERE id = $1 FOR UPDATE`, id).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s %s: %w", c, id, err)
	}

	next, err := fn(old)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE `+tbl+` SET doc = $2, updated_at = NOW() WHERE id = $1`,
		id, []byte(next)); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", c, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Close() {
	s.pool.Close()
}

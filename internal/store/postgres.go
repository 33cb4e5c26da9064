package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// Postgres keeps each entity as a JSONB document alongside its version
// column. The conditional UPDATE on (id, version) is the compare-and-
// increment; RowsAffected 0 with an existing row means a lost race.
type Postgres[T any, PT Ptr[T]] struct {
	pool  *pgxpool.Pool
	table string
}

// SchemaTemplate is the DDL for an entity table; callers apply it with the
// table name at startup or in test setup.
const SchemaTemplate = `
	CREATE TABLE IF NOT EXISTS %s (
		id      TEXT PRIMARY KEY,
		version INT NOT NULL,
		data    JSONB NOT NULL
	)
`

func NewPostgres[T any, PT Ptr[T]](pool *pgxpool.Pool, table string) *Postgres[T, PT] {
	return &Postgres[T, PT]{pool: pool, table: table}
}

// Pool exposes the underlying connection pool to repositories that add
// entity-specific queries on top of the JSONB column.
func (s *Postgres[T, PT]) Pool() *pgxpool.Pool { return s.pool }

func (s *Postgres[T, PT]) Table() string { return s.table }

func (s *Postgres[T, PT]) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(SchemaTemplate, s.table))
	return err
}

func (s *Postgres[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	var (
		version int
		data    []byte
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT version, data FROM %s WHERE id = $1`, s.table,
	), id).Scan(&version, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	pt := PT(&e)
	pt.meta().ID = id
	pt.meta().Version = version
	return pt, nil
}

func (s *Postgres[T, PT]) Insert(ctx context.Context, e PT) error {
	e.meta().Version = 0
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, version, data) VALUES ($1, 0, $2)`, s.table,
	), e.meta().ID, data)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return ErrAlreadyExists
	}
	return err
}

func (s *Postgres[T, PT]) UpdateIfCurrent(ctx context.Context, id string, expected int, mutate func(PT)) (PT, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.meta().Version != expected {
		return nil, ErrVersionConflict
	}

	mutate(cur)
	cur.meta().Version = expected + 1

	data, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	res, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET version = $3, data = $4 WHERE id = $1 AND version = $2`, s.table,
	), id, expected, expected+1, data)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected() == 0 {
		return nil, ErrVersionConflict
	}
	return cur, nil
}

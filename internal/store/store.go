package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS label_runs (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	rule        text NOT NULL DEFAULT '',
	status      text NOT NULL DEFAULT 'running',
	metrics     jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at  timestamptz NOT NULL DEFAULT now(),
	finished_at timestamptz
);

CREATE TABLE IF NOT EXISTS labeled_records (
	id         bigserial PRIMARY KEY,
	run_id     uuid NOT NULL REFERENCES label_runs(id) ON DELETE CASCADE,
	stage      text NOT NULL,
	position   int NOT NULL,
	label      text NOT NULL DEFAULT '',
	payload    text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS labeled_records_run_stage ON labeled_records (run_id, stage);
`

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables used by evaluation runs.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

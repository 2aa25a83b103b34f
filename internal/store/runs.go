package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/record"
)

const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusAborted  = "aborted" // the operator quit before labeling every sample
	StatusFailed   = "failed"
)

type RunRow struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Rule       string             `json:"rule"`
	Status     string             `json:"status"`
	Metrics    map[string]float64 `json:"metrics"`
	CreatedAt  time.Time          `json:"created_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// CreateRun registers a new evaluation run in the running state.
func (s *Store) CreateRun(ctx context.Context, name, rule string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO label_runs (id, name, rule, status, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, name, rule, StatusRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// WriteLabeled stores the labeled records of one pipeline stage in order.
func (s *Store) WriteLabeled(ctx context.Context, runID uuid.UUID, stage string, recs []record.Record) (int, error) {
	rows := make([][]any, 0, len(recs))
	for i, rec := range recs {
		payload, err := rec.Serialize()
		if err != nil {
			return 0, fmt.Errorf("serialize record %d: %w", i+1, err)
		}
		label, _ := rec.Label()
		rows = append(rows, []any{runID, stage, i + 1, label, string(payload)})
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"labeled_records"},
		[]string{"run_id", "stage", "position", "label", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy labeled records: %w", err)
	}
	return int(n), nil
}

// FinishRun closes a run with its final status and metrics.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status string, metrics map[string]float64) error {
	if metrics == nil {
		metrics = map[string]float64{}
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE label_runs SET status = $2, metrics = $3, finished_at = now()
		WHERE id = $1`,
		id, status, data,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, rule, status, metrics, created_at, finished_at
		FROM label_runs WHERE id = $1`, id)

	var (
		r       RunRow
		metrics []byte
	)
	err := row.Scan(&r.ID, &r.Name, &r.Rule, &r.Status, &metrics, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &r, nil
}

// RunPrecision recomputes precision per stage from the stored numeric labels.
func (s *Store) RunPrecision(ctx context.Context, id uuid.UUID) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stage, avg(label::double precision)
		FROM labeled_records
		WHERE run_id = $1 AND label ~ '^-?[0-9]+(\.[0-9]+)?$'
		GROUP BY stage`, id)
	if err != nil {
		return nil, fmt.Errorf("query precision: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			stage string
			p     float64
		)
		if err := rows.Scan(&stage, &p); err != nil {
			return nil, fmt.Errorf("scan precision: %w", err)
		}
		out[stage] = p
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS migration_runs (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		report_path TEXT NOT NULL,
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_migration_runs_created_at ON migration_runs(created_at);

	CREATE TABLE IF NOT EXISTS channel_outcomes (
		run_id TEXT NOT NULL REFERENCES migration_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		slug TEXT NOT NULL,
		status TEXT NOT NULL,
		data JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, slug)
	);

	CREATE INDEX IF NOT EXISTS idx_channel_outcomes_slug ON channel_outcomes(slug);
	CREATE INDEX IF NOT EXISTS idx_channel_outcomes_status ON channel_outcomes(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun inserts or updates a run
func (s *postgresStorage) SaveRun(ctx context.Context, run *domain.MigrationRun) error {
	query := `
		INSERT INTO migration_runs (id, phase, report_path, status, total, succeeded, failed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			report_path = EXCLUDED.report_path,
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Phase),
		run.ReportPath,
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

// GetRun retrieves a run by id
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.MigrationRun, error) {
	var r domain.MigrationRun
	var phase string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phase, report_path, status, total, succeeded, failed, created_at, updated_at
		FROM migration_runs
		WHERE id = $1
	`, id).Scan(&r.ID, &phase, &r.ReportPath, &r.Status, &r.Total, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("run %s", id))
	}
	if err != nil {
		return nil, err
	}
	r.Phase = domain.RunPhase(phase)
	return &r, nil
}

// GetRuns retrieves the most recent runs, newest first
func (s *postgresStorage) GetRuns(ctx context.Context, limit int) ([]*domain.MigrationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phase, report_path, status, total, succeeded, failed, created_at, updated_at
		FROM migration_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.MigrationRun
	for rows.Next() {
		var r domain.MigrationRun
		var phase string
		if err := rows.Scan(&r.ID, &phase, &r.ReportPath, &r.Status, &r.Total, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Phase = domain.RunPhase(phase)
		runs = append(runs, &r)
	}

	return runs, rows.Err()
}

// SaveOutcome records the outcome of one channel within a run
func (s *postgresStorage) SaveOutcome(ctx context.Context, runID string, position int, outcome *domain.MigrationOutcome) error {
	dataJSON, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO channel_outcomes (run_id, position, slug, status, data, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, slug) DO UPDATE SET
			position = EXCLUDED.position,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err = s.db.ExecContext(ctx, query,
		runID,
		position,
		outcome.Slug,
		string(outcome.Status),
		dataJSON,
		time.Now().UTC(),
	)
	return err
}

// GetOutcomes retrieves the outcomes of a run in processing order
func (s *postgresStorage) GetOutcomes(ctx context.Context, runID string) ([]*domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, position, data, recorded_at
		FROM channel_outcomes
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// GetChannelHistory retrieves every journaled outcome of a channel
func (s *postgresStorage) GetChannelHistory(ctx context.Context, slug string) ([]*domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, position, data, recorded_at
		FROM channel_outcomes
		WHERE slug = $1
		ORDER BY recorded_at DESC
	`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]*domain.OutcomeRecord, error) {
	var records []*domain.OutcomeRecord
	for rows.Next() {
		var rec domain.OutcomeRecord
		var data []byte
		if err := rows.Scan(&rec.RunID, &rec.Position, &data, &rec.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome of run %s: %w", rec.RunID, err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

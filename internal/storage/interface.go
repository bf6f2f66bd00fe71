package storage

import (
	"context"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
)

// Storage is the run journal: every run and the outcome of every channel it
// processed. The report file stays authoritative; the journal keeps history.
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, run *domain.MigrationRun) error
	GetRun(ctx context.Context, id string) (*domain.MigrationRun, error)
	GetRuns(ctx context.Context, limit int) ([]*domain.MigrationRun, error)

	// Outcome operations
	SaveOutcome(ctx context.Context, runID string, position int, outcome *domain.MigrationOutcome) error
	GetOutcomes(ctx context.Context, runID string) ([]*domain.OutcomeRecord, error)

	// GetChannelHistory lists a channel's outcomes across runs, newest first
	GetChannelHistory(ctx context.Context, slug string) ([]*domain.OutcomeRecord, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

package storage

import (
	"context"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
)

// Journal records progress events in a Storage
type Journal struct {
	store Storage
}

// NewJournal creates a journal writing to store
func NewJournal(store Storage) *Journal {
	return &Journal{store: store}
}

// Observe implements progress.Observer
func (j *Journal) Observe(ctx context.Context, event progress.Event) error {
	run := event.Run
	if err := j.store.SaveRun(ctx, &run); err != nil {
		return err
	}
	if event.Kind == progress.ChannelDone && event.Outcome != nil {
		return j.store.SaveOutcome(ctx, run.ID, event.Position, event.Outcome)
	}
	return nil
}

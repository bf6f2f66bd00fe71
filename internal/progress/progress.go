// Package progress carries run and channel events to interested observers
// such as the run journal and the event publisher.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
)

// Kind is the type of an event
type Kind string

const (
	RunStarted  Kind = "run_started"
	ChannelDone Kind = "channel_done"
	RunFinished Kind = "run_finished"
)

// Event reports a run transition. Outcome is set for ChannelDone only;
// Position is the 1-based position of the channel in the run.
type Event struct {
	Kind     Kind                     `json:"kind"`
	Run      domain.MigrationRun      `json:"run"`
	Position int                      `json:"position,omitempty"`
	Outcome  *domain.MigrationOutcome `json:"outcome,omitempty"`
	Time     time.Time                `json:"time"`
}

// Observer receives events after the report has been flushed
type Observer interface {
	Observe(ctx context.Context, event Event) error
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, event Event) error

func (f ObserverFunc) Observe(ctx context.Context, event Event) error { return f(ctx, event) }

// Fanout delivers events to several observers. Observer failures are
// logged and never interrupt the run.
type Fanout struct {
	observers []Observer
	logger    *slog.Logger
}

// NewFanout creates a fanout; nil observers are ignored
func NewFanout(logger *slog.Logger, observers ...Observer) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{logger: logger}
	for _, o := range observers {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
	return f
}

// Add registers another observer
func (f *Fanout) Add(o Observer) {
	if o != nil {
		f.observers = append(f.observers, o)
	}
}

// Observe implements Observer
func (f *Fanout) Observe(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, o := range f.observers {
		if err := o.Observe(ctx, event); err != nil {
			f.logger.Warn("progress observer failed", "kind", event.Kind, "run_id", event.Run.ID, "error", err)
		}
	}
	return nil
}

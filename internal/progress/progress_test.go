package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/logging"
)

func TestFanout_ContinuesAfterFailure(t *testing.T) {
	var seen []Kind
	failing := ObserverFunc(func(ctx context.Context, e Event) error {
		return errors.New("redis down")
	})
	recording := ObserverFunc(func(ctx context.Context, e Event) error {
		seen = append(seen, e.Kind)
		if e.Time.IsZero() {
			t.Error("fanout should stamp the event time")
		}
		return nil
	})

	f := NewFanout(logging.Discard(), failing, nil, recording)
	if err := f.Observe(context.Background(), Event{Kind: RunStarted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Observe(context.Background(), Event{Kind: RunFinished})

	if len(seen) != 2 || seen[0] != RunStarted || seen[1] != RunFinished {
		t.Errorf("seen = %v", seen)
	}
}

package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

// Aggregator defines the interface for summarizing a migration report
type Aggregator interface {
	// Report returns the report as stored
	Report(ctx context.Context) (domain.Report, error)

	// Summary aggregates the whole report
	Summary(ctx context.Context) (*domain.ReportSummary, error)

	// Channels returns one summary row per channel, in report order
	Channels(ctx context.Context) ([]*domain.ChannelSummary, error)

	// Channel returns the summary row of one channel
	Channel(ctx context.Context, slug string) (*domain.ChannelSummary, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	store report.Store
	now   func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(store report.Store) Aggregator {
	return &aggregator{
		store: store,
		now:   time.Now,
	}
}

// Report returns the report as stored
func (a *aggregator) Report(ctx context.Context) (domain.Report, error) {
	return a.store.Load(ctx)
}

// Summary aggregates the whole report
func (a *aggregator) Summary(ctx context.Context) (*domain.ReportSummary, error) {
	rep, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	summary := Summarize(rep)
	summary.GeneratedAt = a.now()
	return summary, nil
}

// Channels returns one summary row per channel
func (a *aggregator) Channels(ctx context.Context) ([]*domain.ChannelSummary, error) {
	rep, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]*domain.ChannelSummary, 0, len(rep))
	for i := range rep {
		rows = append(rows, SummarizeChannel(&rep[i]))
	}
	return rows, nil
}

// Channel returns the summary row of one channel
func (a *aggregator) Channel(ctx context.Context, slug string) (*domain.ChannelSummary, error) {
	rep, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := rep.Find(slug)
	if i < 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("channel %s", slug))
	}
	return SummarizeChannel(&rep[i]), nil
}

// Summarize totals a report
func Summarize(rep domain.Report) *domain.ReportSummary {
	s := &domain.ReportSummary{Channels: len(rep)}
	for i := range rep {
		row := SummarizeChannel(&rep[i])
		switch row.Status {
		case domain.StatusSuccess:
			s.Succeeded++
		case domain.StatusError:
			s.Failed++
		}
		s.TasksCreated += row.TasksCreated
		s.TasksExecuted += row.TasksExecuted
		s.TasksFailed += row.TasksFailed

		s.Expected.ItemSets += row.Expected.ItemSets
		s.Expected.Items += row.Expected.Items
		s.Expected.Media += row.Expected.Media

		if row.Repository != nil {
			s.Counted++
			s.Repository.ItemSets += row.Repository.ItemSets
			s.Repository.Items += row.Repository.Items
			s.Repository.Media += row.Repository.Media
		}
	}
	s.TasksPending = s.TasksCreated - s.TasksExecuted - s.TasksFailed
	return s
}

// SummarizeChannel builds the summary row of one outcome. Repository counts
// are reported only once at least one of them is known.
func SummarizeChannel(o *domain.MigrationOutcome) *domain.ChannelSummary {
	row := &domain.ChannelSummary{
		Slug:         o.Slug,
		Name:         o.Name,
		Status:       o.Status,
		SiteID:       o.SiteID,
		TasksCreated: len(o.TasksCreated),
		Expected:     o.ContentStats,
		Error:        o.ErrorMessage,
	}
	for _, task := range o.TasksCreated {
		switch {
		case task.Executed():
			row.TasksExecuted++
		case task.Error != nil:
			row.TasksFailed++
		}
	}

	if o.OmekaItemSetsCount != nil || o.OmekaItemsCount != nil || o.OmekaMediaCount != nil {
		row.Repository = &domain.RepositoryCounts{
			ItemSets: deref(o.OmekaItemSetsCount),
			Items:    deref(o.OmekaItemsCount),
			Media:    deref(o.OmekaMediaCount),
		}
	}
	return row
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

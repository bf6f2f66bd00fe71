package aggregator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

func sampleReport() domain.Report {
	a := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "A", Slug: "a"})
	a.Status = domain.StatusSuccess
	a.SiteID = domain.IntPtr(1)
	a.ContentStats = domain.ContentStats{ItemSets: 2, Items: 10, Media: 4}
	a.TasksCreated = []domain.TaskRecord{
		{Importer: "Items", ID: 1, JobID: domain.IntPtr(11)},
		{Importer: "Media", ID: 2, Error: domain.StringPtr("boom")},
		{Importer: "Tags", ID: 3},
	}
	a.OmekaItemsCount = domain.IntPtr(9)

	b := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "B", Slug: "b"})
	b.Fail("export failed")

	return domain.Report{*a, *b}
}

func newAggregator(t *testing.T) Aggregator {
	t.Helper()
	store := report.NewFileStore(filepath.Join(t.TempDir(), "report.json"))
	if err := store.Save(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	return NewAggregator(store)
}

func TestSummary(t *testing.T) {
	s, err := newAggregator(t).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Channels != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Errorf("channel totals = %+v", s)
	}
	if s.TasksCreated != 3 || s.TasksExecuted != 1 || s.TasksFailed != 1 || s.TasksPending != 1 {
		t.Errorf("task totals = %+v", s)
	}
	if s.Expected.Items != 10 || s.Repository.Items != 9 || s.Counted != 1 {
		t.Errorf("counts = %+v / %+v / %d", s.Expected, s.Repository, s.Counted)
	}
	if s.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestChannels(t *testing.T) {
	agg := newAggregator(t)
	rows, err := agg.Channels(context.Background())
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(rows) != 2 || rows[0].Slug != "a" || rows[1].Slug != "b" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Repository == nil || rows[0].Repository.ItemSets != 0 {
		t.Errorf("repository counts = %+v", rows[0].Repository)
	}
	if rows[1].Repository != nil || rows[1].Error == nil {
		t.Errorf("failed row = %+v", rows[1])
	}

	if _, err := agg.Channel(context.Background(), "missing"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(domain.Report{})
	if s.Channels != 0 || s.TasksPending != 0 {
		t.Errorf("summary = %+v", s)
	}
}

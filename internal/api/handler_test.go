package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/aggregator"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/logging"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

type stubJournal struct {
	runs     []*domain.MigrationRun
	outcomes map[string][]*domain.OutcomeRecord
}

func (s *stubJournal) SaveRun(context.Context, *domain.MigrationRun) error { return nil }

func (s *stubJournal) GetRun(_ context.Context, id string) (*domain.MigrationRun, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("run " + id)
}

func (s *stubJournal) GetRuns(_ context.Context, limit int) ([]*domain.MigrationRun, error) {
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubJournal) SaveOutcome(context.Context, string, int, *domain.MigrationOutcome) error {
	return nil
}

func (s *stubJournal) GetOutcomes(_ context.Context, runID string) ([]*domain.OutcomeRecord, error) {
	return s.outcomes[runID], nil
}

func (s *stubJournal) GetChannelHistory(_ context.Context, slug string) ([]*domain.OutcomeRecord, error) {
	var out []*domain.OutcomeRecord
	for _, records := range s.outcomes {
		for _, r := range records {
			if r.Outcome.Slug == slug {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *stubJournal) Migrate(context.Context) error { return nil }
func (s *stubJournal) Close() error                  { return nil }

func setupRouter(t *testing.T, journal *stubJournal) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "A", Slug: "a"})
	a.Status = domain.StatusSuccess
	a.TasksCreated = []domain.TaskRecord{{Importer: "Items", ID: 1}}
	b := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "B", Slug: "b"})
	b.Fail("export failed")

	store := report.NewFileStore(filepath.Join(t.TempDir(), "report.json"))
	if err := store.Save(context.Background(), domain.Report{*a, *b}); err != nil {
		t.Fatal(err)
	}

	var h *Handler
	if journal == nil {
		h = NewHandler(aggregator.NewAggregator(store), nil)
	} else {
		h = NewHandler(aggregator.NewAggregator(store), journal)
	}
	return SetupRoutes(h, logging.Discard())
}

func get(t *testing.T, router *gin.Engine, path string) (int, map[string]json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", path, w.Body.String(), err)
	}
	return w.Code, body
}

func TestHealthCheck(t *testing.T) {
	code, body := get(t, setupRouter(t, nil), "/health")
	if code != http.StatusOK || string(body["status"]) != `"ok"` {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestGetSummary(t *testing.T) {
	code, body := get(t, setupRouter(t, nil), "/api/v1/report/summary")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var summary domain.ReportSummary
	if err := json.Unmarshal(body["data"], &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Channels != 2 || summary.Succeeded != 1 || summary.TasksPending != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGetChannels(t *testing.T) {
	router := setupRouter(t, nil)

	code, body := get(t, router, "/api/v1/report/channels?status=error")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var rows []domain.ChannelSummary
	if err := json.Unmarshal(body["data"], &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Slug != "b" {
		t.Errorf("rows = %+v", rows)
	}

	code, _ = get(t, router, "/api/v1/report/channels/a")
	if code != http.StatusOK {
		t.Errorf("channel a status = %d", code)
	}
	code, body = get(t, router, "/api/v1/report/channels/missing")
	if code != http.StatusNotFound {
		t.Errorf("missing channel status = %d", code)
	}
	if _, ok := body["error"]; !ok {
		t.Error("error body expected")
	}
}

func TestGetRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	outcome := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "A", Slug: "a"})
	journal := &stubJournal{
		runs: []*domain.MigrationRun{
			{ID: "r2", Phase: domain.RunPhaseExecution, Status: "completed", CreatedAt: now},
			{ID: "r1", Phase: domain.RunPhaseStructure, Status: "completed", CreatedAt: now},
		},
		outcomes: map[string][]*domain.OutcomeRecord{
			"r1": {{RunID: "r1", Position: 1, Outcome: *outcome}},
		},
	}
	router := setupRouter(t, journal)

	code, body := get(t, router, "/api/v1/runs?limit=1")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var runs []domain.MigrationRun
	if err := json.Unmarshal(body["data"], &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "r2" {
		t.Errorf("runs = %+v", runs)
	}

	if code, _ := get(t, router, "/api/v1/runs?limit=zero"); code != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d", code)
	}

	code, body = get(t, router, "/api/v1/runs/r1/outcomes")
	if code != http.StatusOK {
		t.Fatalf("outcomes status = %d", code)
	}
	var data struct {
		Run      domain.MigrationRun    `json:"run"`
		Outcomes []domain.OutcomeRecord `json:"outcomes"`
	}
	if err := json.Unmarshal(body["data"], &data); err != nil {
		t.Fatal(err)
	}
	if data.Run.ID != "r1" || len(data.Outcomes) != 1 || data.Outcomes[0].Outcome.Slug != "a" {
		t.Errorf("data = %+v", data)
	}

	if code, _ := get(t, router, "/api/v1/runs/nope/outcomes"); code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", code)
	}
}

func TestGetRuns_WithoutJournal(t *testing.T) {
	code, body := get(t, setupRouter(t, nil), "/api/v1/runs")
	if code != http.StatusOK || string(body["data"]) != "[]" {
		t.Errorf("runs = %d %s", code, body["data"])
	}
}

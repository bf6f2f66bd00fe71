package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/v1/report/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"channels":3,"succeeded":2,"failed":1,"tasks_pending":4}}`))
	})
	mux.HandleFunc("/api/v1/report/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "error" {
			t.Errorf("status filter = %q", r.URL.Query().Get("status"))
		}
		w.Write([]byte(`{"data":[{"slug":"b","status":"error","error":"export failed"}]}`))
	})
	mux.HandleFunc("/api/v1/report/channels/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"channel missing not found"}}`))
	})
	mux.HandleFunc("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"data":[{"id":"r1","phase":"structure","status":"completed","total":2}]}`))
	})
	mux.HandleFunc("/api/v1/runs/r1/outcomes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"run":{"id":"r1"},"outcomes":[{"run_id":"r1","position":1,"outcome":{"slug":"a","status":"success"}}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newServer(t).URL + "/")

	if err := c.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	summary, err := c.GetSummary(ctx)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.Channels != 3 || summary.TasksPending != 4 {
		t.Errorf("summary = %+v", summary)
	}

	rows, err := c.GetChannels(ctx, "error")
	if err != nil {
		t.Fatalf("GetChannels: %v", err)
	}
	if len(rows) != 1 || rows[0].Error == nil || *rows[0].Error != "export failed" {
		t.Errorf("rows = %+v", rows)
	}

	runs, err := c.GetRuns(ctx, 5)
	if err != nil || len(runs) != 1 || runs[0].Total != 2 {
		t.Errorf("GetRuns = %+v, %v", runs, err)
	}

	run, outcomes, err := c.GetRunOutcomes(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRunOutcomes: %v", err)
	}
	if run.ID != "r1" || len(outcomes) != 1 || outcomes[0].Outcome.Slug != "a" {
		t.Errorf("run = %+v outcomes = %+v", run, outcomes)
	}
}

func TestClient_APIError(t *testing.T) {
	c := NewClient(newServer(t).URL)

	_, err := c.GetChannel(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

package report

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

func sampleReport() domain.Report {
	ok := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "Channel A", URL: "https://a.example/", Slug: "channel-a", Editor: "editorA"})
	ok.SiteID = domain.IntPtr(101)
	ok.UserID = domain.IntPtr(42)
	ok.UserLogin = domain.StringPtr("editorA")
	ok.TasksCreated = []domain.TaskRecord{{Importer: "Items", ID: 900, JobID: domain.IntPtr(55), NewTaskID: domain.IntPtr(901)}}
	ok.ContentStats = domain.ContentStats{ItemSets: 2, Items: 5, Media: 7}
	ok.Status = domain.StatusSuccess
	ok.OmekaItemsCount = domain.IntPtr(5)

	failed := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "Channel B", URL: "https://b.example/", Slug: "channel-b", Editor: "editorB"})
	failed.Fail("site creation failed: REMOTE_ERROR: POST /sites returned 500")

	return domain.Report{*ok, *failed}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "report.json"))

	for name, rep := range map[string]domain.Report{"empty": {}, "sample": sampleReport()} {
		if err := store.Save(ctx, rep); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if !reflect.DeepEqual(got, rep) {
			t.Errorf("%s: round trip mismatch\n got  %+v\n want %+v", name, got, rep)
		}
	}
}

func TestFileStore_MissingIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty report, got %#v", got)
	}
	exists, err := store.Exists(context.Background())
	if err != nil || exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte(`[{"slug": 3}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(path).Load(context.Background())
	if !apperrors.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestFileStore_SchemaFieldNames(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "report.json"))
	if err := store.Save(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, field := range []string{
		`"name"`, `"url"`, `"slug"`, `"editor"`, `"site_id": 101`, `"user_id"`, `"user_login"`,
		`"tasks_created"`, `"number_of_itemsets"`, `"number_of_items"`, `"number_of_media"`,
		`"status": "success"`, `"error_message": null`, `"site_id": null`, `"omeka_items_count": 5`,
	} {
		if !strings.Contains(text, field) {
			t.Errorf("report is missing %s", field)
		}
	}
	if strings.Contains(text, "omeka_media_count") {
		t.Error("unset repository counts must be omitted")
	}
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "report.json"))
	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), sampleReport()); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the report in %s, found %d entries", dir, len(entries))
	}
}

func TestFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(filepath.Join(blocker, "report.json"))
	if err := store.Save(context.Background(), sampleReport()); !apperrors.IsReportIO(err) {
		t.Fatalf("expected report io error, got %v", err)
	}
}

func TestLoadSelector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(`{"tasks": [900, 901]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	sel, err := LoadSelector(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Tasks) != 2 || sel.Tasks[1] != 901 {
		t.Errorf("Tasks = %v", sel.Tasks)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"tasks": []}`), 0o644)
	if _, err := LoadSelector(empty); !apperrors.IsConfig(err) {
		t.Errorf("expected config error for empty selector, got %v", err)
	}
}

package tasks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/logging"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka/omekatest"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

var admin = omeka.Credentials{KeyIdentity: "admin", KeyCredential: "root"}

type fixture struct {
	repo   *omekatest.Fake
	input  report.Store
	output report.Store
	runner *Runner
	siteID int
	tasks  []int
}

// newFixture stores one channel with a site and two deferred imports
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	repo := omekatest.New()

	site, _ := repo.CreateSite(ctx, "Channel A", "channel-a")
	imp, _ := repo.CreateImporter(ctx, domain.NewImporterDefinition(map[string]any{"o:label": "Items"}))
	first, _ := repo.CreateImportJob(ctx, omeka.ImportJobRequest{ImporterID: imp.ID, SiteLabel: "Channel A"})
	second, _ := repo.CreateImportJob(ctx, omeka.ImportJobRequest{ImporterID: imp.ID, SiteLabel: "Channel A"})

	f := &fixture{
		repo:   repo,
		input:  report.NewFileStore(filepath.Join(dir, "migration_report.json")),
		output: report.NewFileStore(filepath.Join(dir, "tasks_report.json")),
		runner: NewRunner(repo, logging.Discard()),
		siteID: site.ID,
		tasks:  []int{first.ID, second.ID},
	}

	outcome := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "Channel A", Slug: "channel-a"})
	outcome.Status = domain.StatusSuccess
	outcome.SiteID = domain.IntPtr(site.ID)
	outcome.TasksCreated = []domain.TaskRecord{
		{Importer: "Items", ID: first.ID},
		{Importer: "Media", ID: second.ID},
	}
	noSite := domain.NewMigrationOutcome(domain.ChannelDescriptor{Name: "Channel B", Slug: "channel-b"})
	noSite.Fail("site creation failed")

	if err := f.input.Save(ctx, domain.Report{*outcome, *noSite}); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestRun_ExecutesPendingTasks(t *testing.T) {
	f := newFixture(t)
	f.repo.Counts = map[string]int{"item_sets": 2, "items": 10, "media": 14}

	rep, err := f.runner.Run(context.Background(), f.input, f.output, Options{Admin: admin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rep))
	}
	for _, task := range rep[0].TasksCreated {
		if task.JobID == nil || task.NewTaskID == nil || task.Error != nil {
			t.Errorf("task = %+v", task)
		}
	}
	a := rep[0]
	if a.OmekaItemSetsCount == nil || *a.OmekaItemSetsCount != 2 || *a.OmekaItemsCount != 10 || *a.OmekaMediaCount != 14 {
		t.Errorf("counts = %v %v %v", a.OmekaItemSetsCount, a.OmekaItemsCount, a.OmekaMediaCount)
	}
	if len(f.repo.AsUsed) == 0 || f.repo.AsUsed[0] != admin {
		t.Errorf("elevated credentials not used: %+v", f.repo.AsUsed)
	}

	stored, err := f.output.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].TasksCreated[0].JobID == nil {
		t.Error("output report must hold the job ids")
	}
}

func TestRun_ExecutionFailureRecorded(t *testing.T) {
	f := newFixture(t)
	f.repo.Errors["ExecuteTask:"+strconv.Itoa(f.tasks[0])] = omekatest.RemoteFailure(500)

	rep, err := f.runner.Run(context.Background(), f.input, f.output, Options{Admin: admin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed, ok := rep[0].TasksCreated[0], rep[0].TasksCreated[1]
	if failed.JobID != nil || failed.Error == nil {
		t.Errorf("failed task = %+v", failed)
	}
	if ok.JobID == nil {
		t.Errorf("the remaining task must still run: %+v", ok)
	}

	data, err := os.ReadFile(f.output.Path())
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	first := decoded[0]["tasks_created"].([]any)[0].(map[string]any)
	if _, has := first["error"]; !has {
		t.Errorf("failed task must carry an error field: %v", first)
	}
	if jobID, has := first["job_id"]; !has || jobID != nil {
		t.Errorf("failed task must record job_id as null: %v", first)
	}
}

func TestRun_ResumeSkipsExecutedTasks(t *testing.T) {
	f := newFixture(t)
	opts := Options{Admin: admin}

	if _, err := f.runner.Run(context.Background(), f.input, f.output, opts); err != nil {
		t.Fatal(err)
	}
	executed := f.repo.CallCount("ExecuteTask")

	rep, err := f.runner.Run(context.Background(), f.input, f.output, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.repo.CallCount("ExecuteTask"); got != executed {
		t.Errorf("ExecuteTask called %d more times on resume", got-executed)
	}
	if rep[0].TasksCreated[0].JobID == nil {
		t.Error("output entries must win over input entries")
	}
}

func TestRun_MissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(omekatest.New(), logging.Discard())
	_, err := runner.Run(context.Background(),
		report.NewFileStore(filepath.Join(dir, "absent.json")),
		report.NewFileStore(filepath.Join(dir, "out.json")), Options{})
	if !apperrors.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRun_MalformedInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	if err := os.WriteFile(in, []byte(`{"channels": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := omekatest.New()
	_, err := NewRunner(repo, logging.Discard()).Run(context.Background(),
		report.NewFileStore(in), report.NewFileStore(filepath.Join(dir, "out.json")), Options{})
	if !apperrors.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(repo.Calls) != 0 {
		t.Error("no remote call may happen")
	}
}

func TestRun_DeleteOriginal(t *testing.T) {
	f := newFixture(t)
	if _, err := f.runner.Run(context.Background(), f.input, f.output, Options{Admin: admin, DeleteOriginal: true}); err != nil {
		t.Fatal(err)
	}
	for _, id := range f.tasks {
		if _, still := f.repo.Imports[id]; still {
			t.Errorf("import %d should be deleted", id)
		}
	}
}

func TestMerge(t *testing.T) {
	in := domain.Report{{Slug: "a"}, {Slug: "b"}}
	out := domain.Report{{Slug: "b", Status: domain.StatusSuccess}, {Slug: "c"}}

	merged := Merge(in, out)
	if len(merged) != 3 || merged[0].Slug != "a" || merged[1].Status != domain.StatusSuccess || merged[2].Slug != "c" {
		t.Errorf("merged = %+v", merged)
	}
	if in[1].Status != "" {
		t.Error("input must not be modified")
	}
}

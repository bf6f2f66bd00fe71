// Package tasks executes the deferred bulk imports recorded in a migration
// report, attaches the resulting item sets to their sites and records the
// repository counts.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

// Options controls one execution run
type Options struct {
	RunID string
	// Admin is the elevated key used for every repository call of the run
	Admin          omeka.Credentials
	MarkerProperty string
	MarkerPrefix   string
	// DeleteOriginal removes the deferred import once its job is dispatched
	DeleteOriginal bool
	SkipReconcile  bool
	SkipCounts     bool
}

func (o *Options) applyDefaults() {
	if o.RunID == "" {
		o.RunID = uuid.New().String()
	}
	if o.MarkerProperty == "" {
		o.MarkerProperty = "dcterms:audience"
	}
	if o.MarkerPrefix == "" {
		o.MarkerPrefix = "site:"
	}
}

// Runner runs the execution phase over a report
type Runner struct {
	repo     omeka.Repository
	observer progress.Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a new task runner
func NewRunner(repo omeka.Repository, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{repo: repo, logger: logger, now: time.Now}
}

// WithObserver registers the observer notified after every flush
func (r *Runner) WithObserver(observer progress.Observer) *Runner {
	r.observer = observer
	return r
}

// Run executes the pending tasks of every channel in input and writes the
// updated report to output after each channel. Entries already present in
// output take precedence over input, so an interrupted run resumes where
// it stopped.
func (r *Runner) Run(ctx context.Context, input, output report.Store, opts Options) (domain.Report, error) {
	opts.applyDefaults()

	exists, err := input.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewConfigError(fmt.Sprintf("input report %s does not exist", input.Path()), nil)
	}
	in, err := input.Load(ctx)
	if err != nil {
		return nil, err
	}
	out, err := output.Load(ctx)
	if err != nil {
		return nil, err
	}
	rep := Merge(in, out)

	repo := r.repo.As(opts.Admin)
	run := domain.MigrationRun{
		ID:         opts.RunID,
		Phase:      domain.RunPhaseExecution,
		ReportPath: output.Path(),
		Status:     "in_progress",
		Total:      len(rep),
		CreatedAt:  r.now(),
		UpdatedAt:  r.now(),
	}
	r.notify(ctx, progress.Event{Kind: progress.RunStarted, Run: run})

	total := len(rep)
	for i := range rep {
		pos := i + 1
		if err := ctx.Err(); err != nil {
			return rep, r.finish(ctx, run, err)
		}

		outcome := &rep[i]
		failed := r.processChannel(ctx, repo, outcome, opts, pos, total)
		if err := output.Save(ctx, rep); err != nil {
			r.logger.Error("report flush failed", "index", pos, "total", total, "channel", outcome.Slug, "error", err)
			return rep, r.finish(ctx, run, err)
		}

		if failed {
			run.Failed++
		} else {
			run.Succeeded++
		}
		run.UpdatedAt = r.now()
		snapshot := *outcome
		r.notify(ctx, progress.Event{Kind: progress.ChannelDone, Run: run, Position: pos, Outcome: &snapshot})
	}

	return rep, r.finish(ctx, run, nil)
}

// processChannel executes the channel's pending tasks, reconciles its item
// sets and refreshes its counts. It reports whether any task failed.
func (r *Runner) processChannel(ctx context.Context, repo omeka.Repository, outcome *domain.MigrationOutcome, opts Options, pos, total int) bool {
	log := r.logger.With("index", pos, "total", total, "channel", outcome.Slug)
	failed := false

	for j := range outcome.TasksCreated {
		task := &outcome.TasksCreated[j]
		if task.Executed() {
			log.Debug("task already executed, skipping", "task_id", task.ID, "job_id", *task.JobID)
			continue
		}

		exec, err := repo.ExecuteTask(ctx, task.ID)
		if err != nil {
			log.Error("task execution failed", "task_id", task.ID, "importer", task.Importer, "error", err)
			task.JobID = nil
			task.Error = domain.StringPtr(err.Error())
			failed = true
			continue
		}
		task.JobID = domain.IntPtr(exec.JobID)
		task.NewTaskID = domain.IntPtr(exec.NewTaskID)
		task.Error = nil
		log.Info("task executed", "task_id", task.ID, "job_id", exec.JobID, "new_task_id", exec.NewTaskID)

		if opts.DeleteOriginal {
			if err := repo.DeleteImport(ctx, task.ID); err != nil {
				log.Warn("cannot delete executed task", "task_id", task.ID, "error", err)
			}
		}
	}

	if outcome.SiteID == nil {
		log.Debug("channel has no site, skipping reconciliation")
		return failed
	}
	siteID := *outcome.SiteID

	if !opts.SkipReconcile {
		attached, err := Reconcile(ctx, repo, siteID, opts.MarkerProperty, opts.MarkerPrefix, log)
		if err != nil {
			log.Warn("item set reconciliation failed", "site_id", siteID, "error", err)
		} else {
			log.Info("item sets reconciled", "site_id", siteID, "attached", attached)
		}
	}

	if !opts.SkipCounts {
		r.refreshCounts(ctx, repo, outcome, siteID, log)
	}
	return failed
}

func (r *Runner) refreshCounts(ctx context.Context, repo omeka.Repository, outcome *domain.MigrationOutcome, siteID int, log *slog.Logger) {
	targets := []struct {
		resource string
		field    **int
	}{
		{"item_sets", &outcome.OmekaItemSetsCount},
		{"items", &outcome.OmekaItemsCount},
		{"media", &outcome.OmekaMediaCount},
	}
	for _, t := range targets {
		n, err := repo.Count(ctx, t.resource, siteID)
		if err != nil {
			log.Warn("cannot count resources", "resource", t.resource, "site_id", siteID, "error", err)
			continue
		}
		*t.field = domain.IntPtr(n)
	}
}

func (r *Runner) finish(ctx context.Context, run domain.MigrationRun, runErr error) error {
	run.Status = "completed"
	if runErr != nil {
		run.Status = "failed"
	}
	run.UpdatedAt = r.now()
	r.notify(context.WithoutCancel(ctx), progress.Event{Kind: progress.RunFinished, Run: run})
	r.logger.Info("task run finished", "run_id", run.ID, "status", run.Status,
		"succeeded", run.Succeeded, "failed", run.Failed, "total", run.Total)
	return runErr
}

func (r *Runner) notify(ctx context.Context, event progress.Event) {
	if r.observer == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.now()
	}
	if err := r.observer.Observe(ctx, event); err != nil {
		r.logger.Warn("progress observer failed", "kind", event.Kind, "error", err)
	}
}

// Merge starts from input and replaces every entry that output already
// holds for the same slug. Entries only present in output are kept at the end.
func Merge(input, output domain.Report) domain.Report {
	merged := input.Clone()
	for _, o := range output {
		merged = merged.Upsert(o)
	}
	return merged
}

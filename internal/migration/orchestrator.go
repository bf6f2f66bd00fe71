// Package migration creates the Omeka S structure for WordPress channels:
// one site, one editor account, one export and one bulk import per
// importer, channel after channel, with the report flushed in between.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/wordpress"
)

// Exporter downloads a channel export to destPath and counts its markers
type Exporter interface {
	Export(ctx context.Context, channelURL string, creds wordpress.Credentials, destPath string) (domain.ContentStats, error)
}

// Archiver keeps a copy of an export outside the preload directory
type Archiver interface {
	Archive(ctx context.Context, slug, path string) error
}

// Options controls one structure-creation run
type Options struct {
	RunID       string
	ExportsDir  string
	WordPress   wordpress.Credentials
	EmailDomain string
	UserRole    string // global role of created accounts
	SiteRole    string // role granted on the channel's site
	AsTask      bool   // save imports as deferred tasks
	Resume      bool   // skip channels already successful in the report
}

func (o *Options) applyDefaults() {
	if o.RunID == "" {
		o.RunID = uuid.New().String()
	}
	if o.ExportsDir == "" {
		o.ExportsDir = "exports"
	}
	if o.EmailDomain == "" {
		o.EmailDomain = "gobiernodecanarias.org"
	}
	if o.UserRole == "" {
		o.UserRole = "editor"
	}
	if o.SiteRole == "" {
		o.SiteRole = "editor"
	}
}

// Orchestrator runs channels through the migration steps
type Orchestrator struct {
	repo     omeka.Repository
	exporter Exporter
	store    report.Store
	observer progress.Observer
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(repo omeka.Repository, exporter Exporter, store report.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:     repo,
		exporter: exporter,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// WithObserver registers the observer notified after every flush
func (o *Orchestrator) WithObserver(observer progress.Observer) *Orchestrator {
	o.observer = observer
	return o
}

// WithArchiver registers an archiver for successful exports
func (o *Orchestrator) WithArchiver(archiver Archiver) *Orchestrator {
	o.archiver = archiver
	return o
}

// Run prepares the importers once and migrates every channel in order. The
// returned error is fatal (configuration, report persistence or
// cancellation); channel failures only show up in the report.
func (o *Orchestrator) Run(ctx context.Context, channels []domain.ChannelDescriptor, importers []domain.ImporterDefinition, opts Options) (domain.Report, error) {
	opts.applyDefaults()

	if err := checkUniqueSlugs(channels); err != nil {
		return nil, err
	}

	rep, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	prepared, err := o.PrepareImporters(ctx, importers, opts.AsTask)
	if err != nil {
		return rep, err
	}

	run := domain.MigrationRun{
		ID:         opts.RunID,
		Phase:      domain.RunPhaseStructure,
		ReportPath: o.store.Path(),
		Status:     "in_progress",
		Total:      len(channels),
		CreatedAt:  o.now(),
		UpdatedAt:  o.now(),
	}
	o.notify(ctx, progress.Event{Kind: progress.RunStarted, Run: run})

	total := len(channels)
	for i, channel := range channels {
		pos := i + 1
		if err := ctx.Err(); err != nil {
			return rep, o.finish(ctx, run, err)
		}

		if opts.Resume {
			if idx := rep.Find(channel.Slug); idx >= 0 && rep[idx].Succeeded() {
				o.logger.Info("channel already migrated, skipping",
					"index", pos, "total", total, "channel", channel.Slug)
				continue
			}
		}

		outcome := o.migrateChannel(ctx, channel, prepared, opts, pos, total)
		rep = rep.Upsert(*outcome)
		if err := o.store.Save(ctx, rep); err != nil {
			o.logger.Error("report flush failed", "index", pos, "total", total, "channel", channel.Slug, "error", err)
			return rep, o.finish(ctx, run, err)
		}

		if outcome.Succeeded() {
			run.Succeeded++
		} else {
			run.Failed++
		}
		run.UpdatedAt = o.now()
		o.notify(ctx, progress.Event{Kind: progress.ChannelDone, Run: run, Position: pos, Outcome: outcome})
	}

	return rep, o.finish(ctx, run, nil)
}

func (o *Orchestrator) finish(ctx context.Context, run domain.MigrationRun, runErr error) error {
	run.Status = "completed"
	if runErr != nil {
		run.Status = "failed"
	}
	run.UpdatedAt = o.now()
	// cancellation must not prevent the journal from recording the end
	o.notify(context.WithoutCancel(ctx), progress.Event{Kind: progress.RunFinished, Run: run})
	o.logger.Info("run finished", "run_id", run.ID, "status", run.Status,
		"succeeded", run.Succeeded, "failed", run.Failed, "total", run.Total)
	return runErr
}

func (o *Orchestrator) notify(ctx context.Context, event progress.Event) {
	if o.observer == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = o.now()
	}
	if err := o.observer.Observe(ctx, event); err != nil {
		o.logger.Warn("progress observer failed", "kind", event.Kind, "error", err)
	}
}

// migrateChannel runs the steps for one channel. Every failure is captured
// in the outcome; nothing escapes this boundary.
func (o *Orchestrator) migrateChannel(ctx context.Context, channel domain.ChannelDescriptor, importers []PreparedImporter, opts Options, pos, total int) *domain.MigrationOutcome {
	outcome := domain.NewMigrationOutcome(channel)
	log := o.logger.With("index", pos, "total", total, "channel", channel.Slug)
	log.Info("migrating channel", "name", channel.Name)

	site, err := o.ensureSite(ctx, channel, log)
	if err != nil {
		log.Error("step failed", "step", "site", "error", err)
		outcome.Fail(fmt.Sprintf("site creation failed: %v", err))
		return outcome
	}
	outcome.SiteID = domain.IntPtr(site.ID)
	log.Info("step done", "step", "site", "site_id", site.ID)

	user, err := o.ensureUser(ctx, channel.Editor, opts, log)
	if err != nil {
		log.Error("step failed", "step", "user", "error", err)
		outcome.Fail(fmt.Sprintf("user creation failed: %v", err))
		return outcome
	}
	outcome.UserID = domain.IntPtr(user.ID)
	outcome.UserLogin = domain.StringPtr(channel.Editor)
	if user.Name != "" {
		outcome.UserLogin = domain.StringPtr(user.Name)
	}

	if err := o.repo.AddUserToSite(ctx, site.ID, user.ID, opts.SiteRole); err != nil {
		log.Error("step failed", "step", "membership", "error", err)
		outcome.Fail(fmt.Sprintf("adding user to site failed: %v", err))
		return outcome
	}
	log.Info("step done", "step", "user", "user_id", user.ID, "role", opts.SiteRole)

	dest := filepath.Join(opts.ExportsDir, channel.Slug+".xml")
	stats, err := o.exporter.Export(ctx, channel.URL, opts.WordPress, dest)
	if err != nil {
		log.Error("step failed", "step", "export", "error", err)
		outcome.Fail(fmt.Sprintf("export failed: %v", err))
		return outcome
	}
	outcome.ContentStats = stats
	log.Info("step done", "step", "export", "path", dest,
		"itemsets", stats.ItemSets, "items", stats.Items, "media", stats.Media)

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, channel.Slug, dest); err != nil {
			log.Warn("export archive failed", "error", err)
		}
	}

	var size int64
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}

	var failures []string
	for _, imp := range importers {
		job, err := o.repo.CreateImportJob(ctx, omeka.ImportJobRequest{
			ImporterID:    imp.ID,
			ImporterLabel: imp.Label,
			FileName:      filepath.Base(dest),
			FileSize:      size,
			SiteLabel:     channel.Name,
			SiteID:        site.ID,
			OwnerID:       user.ID,
		})
		if err != nil {
			log.Error("step failed", "step", "import", "importer", imp.Label, "error", err)
			failures = append(failures, fmt.Sprintf("import with %q failed: %v", imp.Label, err))
			continue
		}
		task := domain.TaskRecord{Importer: imp.Label, ID: job.ID}
		if job.Job != nil {
			task.JobID = domain.IntPtr(job.Job.ID)
		}
		outcome.TasksCreated = append(outcome.TasksCreated, task)
		log.Info("step done", "step", "import", "importer", imp.Label, "task_id", job.ID)
	}

	if len(failures) > 0 {
		outcome.Fail(joinFailures(failures))
		return outcome
	}

	outcome.Status = domain.StatusSuccess
	log.Info("channel migrated", "tasks", len(outcome.TasksCreated))
	return outcome
}

// ensureSite reuses a site with the channel's slug before creating one
func (o *Orchestrator) ensureSite(ctx context.Context, channel domain.ChannelDescriptor, log *slog.Logger) (*omeka.Site, error) {
	existing, err := o.repo.FindSiteBySlug(ctx, channel.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Warn("site already exists, reusing it", "site_id", existing.ID)
		return existing, nil
	}
	return o.repo.CreateSite(ctx, channel.Name, channel.Slug)
}

// ensureUser reuses the account with the editor's email before creating one
func (o *Orchestrator) ensureUser(ctx context.Context, editor string, opts Options, log *slog.Logger) (*omeka.User, error) {
	if editor == "" {
		return nil, apperrors.NewBadRequestError("channel has no editor")
	}
	email := EditorEmail(editor, opts.EmailDomain)
	existing, err := o.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Warn("user already exists, reusing it", "user_id", existing.ID, "email", email)
		return existing, nil
	}
	return o.repo.CreateUser(ctx, editor, email, opts.UserRole)
}

// checkUniqueSlugs rejects lists where two channels would share a report entry
func checkUniqueSlugs(channels []domain.ChannelDescriptor) error {
	seen := make(map[string]int, len(channels))
	for i, c := range channels {
		if first, ok := seen[c.Slug]; ok {
			return apperrors.NewConfigError(fmt.Sprintf("channels %d (%s) and %d (%s) share the slug %q",
				first+1, channels[first].Name, i+1, c.Name, c.Slug), nil)
		}
		seen[c.Slug] = i
	}
	return nil
}

// EditorEmail returns the account email of an editor login
func EditorEmail(editor, domainName string) string {
	return editor + "@" + domainName
}

func joinFailures(failures []string) string {
	msg := failures[0]
	for _, f := range failures[1:] {
		msg += "; " + f
	}
	return msg
}

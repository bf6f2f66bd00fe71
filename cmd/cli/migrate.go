package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/channels"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/config"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/migration"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/tasks"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/wordpress"
)

var (
	channelsFile   string
	importersFile  string
	reportFile     string
	startIndex     int
	stopIndex      int
	resume         bool
	noTask         bool
	runID          string
	tasksFile      string
	inputReport    string
	outputReport   string
	deleteOriginal bool
	skipReconcile  bool
	skipCounts     bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create sites, users and import tasks for every channel",
	Long: `Migrate the channels listed in a CSV file (name,url,slug,editor).

Importers are prepared once, then every channel gets a site, an editor
account, a WordPress export and one import task per importer. The report
is written after every channel; --resume skips channels that already
succeeded in it.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute existing import tasks by id",
	Long:  `Execute the bulk-import tasks listed in a JSON file of the form {"tasks": [ids]}.`,
	Args:  cobra.NoArgs,
	RunE:  runExecute,
}

var runTasksCmd = &cobra.Command{
	Use:   "run-tasks",
	Short: "Execute the tasks recorded in a migration report",
	Long: `Execute every task of the input report that has no job yet, attach the
marked item sets to their sites and record the repository counts. The
output report is written after every channel and wins over the input on
the next run.`,
	Args: cobra.NoArgs,
	RunE: runRunTasks,
}

func init() {
	migrateCmd.Flags().StringVar(&channelsFile, "channels", "", "channel CSV file (required)")
	migrateCmd.Flags().StringVar(&importersFile, "importers", "", "importer configuration file (default IMPORTERS_CONFIG)")
	migrateCmd.Flags().StringVar(&reportFile, "report", "", "report file (default REPORT_PATH)")
	migrateCmd.Flags().IntVar(&startIndex, "start", 0, "first channel to process (1-based)")
	migrateCmd.Flags().IntVar(&stopIndex, "stop", 0, "last channel to process (1-based, inclusive)")
	migrateCmd.Flags().BoolVar(&resume, "resume", false, "skip channels already successful in the report")
	migrateCmd.Flags().BoolVar(&noTask, "no-task", false, "run imports immediately instead of saving them as tasks")
	migrateCmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default random)")
	_ = migrateCmd.MarkFlagRequired("channels")

	executeCmd.Flags().StringVar(&tasksFile, "tasks", "", "task selector file (required)")
	executeCmd.Flags().StringVar(&reportFile, "report", "", "report file recorded in the run journal (default REPORT_PATH)")
	_ = executeCmd.MarkFlagRequired("tasks")

	runTasksCmd.Flags().StringVar(&inputReport, "input", "", "migration report to read (default REPORT_PATH)")
	runTasksCmd.Flags().StringVar(&outputReport, "output", "tasks_report.json", "report to write")
	runTasksCmd.Flags().BoolVar(&deleteOriginal, "delete-original", false, "delete each task once its job is dispatched")
	runTasksCmd.Flags().BoolVar(&skipReconcile, "skip-reconcile", false, "do not attach marked item sets to sites")
	runTasksCmd.Flags().BoolVar(&skipCounts, "skip-counts", false, "do not record repository counts")
	runTasksCmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default random)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(func(c *config.Config) error {
		if err := c.ValidateOmeka(); err != nil {
			return err
		}
		return c.ValidateWordPress()
	})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	list, err := channels.Load(channelsFile, a.logger)
	if err != nil {
		return err
	}
	list = channels.Window(list, startIndex, stopIndex)

	if importersFile == "" {
		importersFile = a.cfg.ImportersConfig
	}
	importers, err := config.LoadImporters(importersFile)
	if err != nil {
		return err
	}

	if reportFile == "" {
		reportFile = a.cfg.ReportPath
	}
	store := report.NewFileStore(reportFile)

	fanout, err := a.observers()
	if err != nil {
		return err
	}

	exporter := wordpress.NewExporter(wordpress.Options{
		CASLoginURL: a.cfg.CASLoginURL,
		Timeout:     a.cfg.HTTPTimeout,
		Logger:      a.logger,
	})
	orch := migration.NewOrchestrator(a.omekaClient(), exporter, store, a.logger).WithObserver(fanout)

	uploader, err := a.archiver()
	if err != nil {
		return err
	}
	if uploader != nil {
		orch.WithArchiver(uploader)
	}

	a.logger.Info("migration started", "channels", len(list), "importers", len(importers), "report", store.Path())
	rep, err := orch.Run(ctx, list, importers, migration.Options{
		RunID:      runID,
		ExportsDir: a.cfg.ExportsDir,
		WordPress: wordpress.Credentials{
			Username: a.cfg.WPUsername,
			Password: a.cfg.WPPassword,
		},
		EmailDomain: a.cfg.UserEmailDomain,
		SiteRole:    a.cfg.SiteRole,
		AsTask:      !noTask,
		Resume:      resume,
	})
	if err != nil {
		return err
	}

	return printOutcomes(rep, windowSlugs(list))
}

func runExecute(cmd *cobra.Command, args []string) error {
	a, err := newApp((*config.Config).ValidateOmeka)
	if err != nil {
		return err
	}
	defer a.Close()

	selector, err := report.LoadSelector(tasksFile)
	if err != nil {
		return err
	}

	if reportFile == "" {
		reportFile = a.cfg.ReportPath
	}
	fanout, err := a.observers()
	if err != nil {
		return err
	}

	orch := migration.NewOrchestrator(a.omekaClient(), nil, report.NewFileStore(reportFile), a.logger).WithObserver(fanout)
	results := orch.ExecuteOnly(cmd.Context(), selector, a.adminCredentials())

	if outputJSON {
		return writeJSON(os.Stdout, results)
	}

	table := newTable([]string{"Task", "Status", "Job", "New Task", "Error"})
	failed := 0
	for _, r := range results {
		if r.Status != domain.StatusSuccess {
			failed++
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.TaskID),
			string(r.Status),
			optionalInt(r.JobID),
			optionalInt(r.NewTaskID),
			optionalString(r.Error),
		})
	}
	table.Render()
	fmt.Printf("\n%d of %d tasks executed\n", len(results)-failed, len(results))
	return nil
}

func runRunTasks(cmd *cobra.Command, args []string) error {
	a, err := newApp((*config.Config).ValidateOmeka)
	if err != nil {
		return err
	}
	defer a.Close()

	if inputReport == "" {
		inputReport = a.cfg.ReportPath
	}
	fanout, err := a.observers()
	if err != nil {
		return err
	}

	runner := tasks.NewRunner(a.omekaClient(), a.logger).WithObserver(fanout)
	rep, err := runner.Run(cmd.Context(), report.NewFileStore(inputReport), report.NewFileStore(outputReport), tasks.Options{
		RunID:          runID,
		Admin:          a.adminCredentials(),
		MarkerProperty: a.cfg.MarkerProperty,
		MarkerPrefix:   a.cfg.MarkerPrefix,
		DeleteOriginal: deleteOriginal,
		SkipReconcile:  skipReconcile,
		SkipCounts:     skipCounts,
	})
	if err != nil {
		return err
	}

	return printOutcomes(rep, nil)
}

func windowSlugs(list []domain.ChannelDescriptor) map[string]bool {
	slugs := make(map[string]bool, len(list))
	for _, c := range list {
		slugs[c.Slug] = true
	}
	return slugs
}

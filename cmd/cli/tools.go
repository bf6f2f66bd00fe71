package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/config"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/editors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/wordpress"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/xmlstats"
	"github.com/kurihiro0119/omeka-channel-migrator/pkg/client"
)

var (
	exportDest  string
	dryRun      bool
	apiEndpoint string
	runsLimit   int
)

var exportCmd = &cobra.Command{
	Use:   "export [channel-url]",
	Short: "Export one WordPress channel",
	Long:  `Log in through CAS and download the full WXR export of a single channel.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var countCmd = &cobra.Command{
	Use:   "count [export.xml...]",
	Short: "Count the entities of WordPress exports",
	Long:  `Count item sets, items and media in WXR files, plus the raw tag counts.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCount,
}

var updateEditorsCmd = &cobra.Command{
	Use:   "update-editors",
	Short: "Restrict every editor to their own sites and assets",
	Long: `Enable the isolated-sites settings on every user with the editor role.
With --dry-run the users are listed but not modified.`,
	Args: cobra.NoArgs,
	RunE: runUpdateEditors,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress from a running API server",
	Long:  `Query the progress API for the report summary and the most recent runs.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	exportCmd.Flags().StringVar(&exportDest, "dest", "", "destination file (default <EXPORTS_DIR>/export.xml)")
	updateEditorsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the users that would be updated")
	statusCmd.Flags().StringVar(&apiEndpoint, "endpoint", "", "API endpoint (default API_ENDPOINT)")
	statusCmd.Flags().IntVar(&runsLimit, "runs", 5, "number of recent runs to show")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(func(c *config.Config) error {
		if err := c.Validate(); err != nil {
			return err
		}
		return c.ValidateWordPress()
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if exportDest == "" {
		exportDest = filepath.Join(a.cfg.ExportsDir, "export.xml")
	}

	exporter := wordpress.NewExporter(wordpress.Options{
		CASLoginURL: a.cfg.CASLoginURL,
		Timeout:     a.cfg.HTTPTimeout,
		Logger:      a.logger,
	})
	stats, err := exporter.Export(cmd.Context(), args[0], wordpress.Credentials{
		Username: a.cfg.WPUsername,
		Password: a.cfg.WPPassword,
	}, exportDest)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(os.Stdout, struct {
			Path string `json:"path"`
			domain.ContentStats
		}{exportDest, stats})
	}
	fmt.Printf("Exported %s to %s\n", args[0], exportDest)
	printStats(stats)
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	type fileCounts struct {
		File string `json:"file"`
		domain.ContentStats
		Tags xmlstats.TagCounts `json:"tags"`
	}

	var results []fileCounts
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		results = append(results, fileCounts{
			File:         path,
			ContentStats: xmlstats.Count(data),
			Tags:         xmlstats.CountTags(data),
		})
	}

	if outputJSON {
		return writeJSON(os.Stdout, results)
	}

	table := newTable([]string{"File", "Item Sets", "Items", "Media", "<item>", "Categories", "Root Items"})
	for _, r := range results {
		table.Append([]string{
			r.File,
			strconv.Itoa(r.ItemSets),
			strconv.Itoa(r.Items),
			strconv.Itoa(r.Media),
			strconv.Itoa(r.Tags.Items),
			strconv.Itoa(r.Tags.Categories),
			strconv.Itoa(r.Tags.RootItems),
		})
	}
	table.Render()
	return nil
}

func runUpdateEditors(cmd *cobra.Command, args []string) error {
	a, err := newApp((*config.Config).ValidateOmeka)
	if err != nil {
		return err
	}
	defer a.Close()

	isolator := editors.NewIsolator(a.omekaClient().As(a.adminCredentials()), a.logger)
	result, err := isolator.Apply(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(os.Stdout, result)
	}

	table := newTable([]string{"ID", "Name", "Email", "Status", "Error"})
	for _, u := range result.Users {
		table.Append([]string{strconv.Itoa(u.ID), u.Name, u.Email, u.Status, u.Error})
	}
	table.Render()
	if dryRun {
		fmt.Printf("\n%d editors would be updated\n", len(result.Users))
		return nil
	}
	fmt.Printf("\n%d updated, %d errors\n", result.Updated, result.Errors)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if apiEndpoint == "" {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		a.Close()
		apiEndpoint = a.cfg.APIEndpoint
	}
	ctx := cmd.Context()
	c := client.NewClient(apiEndpoint)

	if err := c.HealthCheck(ctx); err != nil {
		return fmt.Errorf("API at %s is not available: %w", apiEndpoint, err)
	}
	summary, err := c.GetSummary(ctx)
	if err != nil {
		return err
	}
	runs, err := c.GetRuns(ctx, runsLimit)
	if err != nil {
		return err
	}

	if outputJSON {
		return writeJSON(os.Stdout, map[string]any{"summary": summary, "runs": runs})
	}

	fmt.Printf("\nChannels: %d (%d succeeded, %d failed)\n", summary.Channels, summary.Succeeded, summary.Failed)
	fmt.Printf("Tasks: %d created, %d executed, %d failed, %d pending\n\n",
		summary.TasksCreated, summary.TasksExecuted, summary.TasksFailed, summary.TasksPending)

	table := newTable([]string{"Run", "Phase", "Status", "Done", "Failed", "Total", "Updated"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			string(r.Phase),
			r.Status,
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Total),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	return nil
}

func printStats(stats domain.ContentStats) {
	table := newTable([]string{"Entity", "Count"})
	table.Append([]string{"Item Sets", strconv.Itoa(stats.ItemSets)})
	table.Append([]string{"Items", strconv.Itoa(stats.Items)})
	table.Append([]string{"Media", strconv.Itoa(stats.Media)})
	table.Render()
}

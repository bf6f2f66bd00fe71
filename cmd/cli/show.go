package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/aggregator"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
)

var (
	outputFormat string
	showFailed   bool
)

var showCmd = &cobra.Command{
	Use:   "show [report]",
	Short: "Show a migration report summary",
	Long:  `Display the totals of a migration or task report (default REPORT_PATH).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShowSummary,
}

var showChannelsCmd = &cobra.Command{
	Use:   "channels [report]",
	Short: "Show one row per channel",
	Long:  `Display the status, tasks and counts of every channel in a report.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShowChannels,
}

var showChannelCmd = &cobra.Command{
	Use:   "channel [slug] [report]",
	Short: "Show one channel",
	Long:  `Display everything a report records about one channel.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runShowChannel,
}

func init() {
	showCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format (table, json, yaml)")
	showChannelsCmd.Flags().BoolVar(&showFailed, "failed", false, "only show failed channels")

	showCmd.AddCommand(showChannelsCmd)
	showCmd.AddCommand(showChannelCmd)
}

// reportAggregator opens the report named in args, or the configured one
func reportAggregator(args []string, index int) (aggregator.Aggregator, error) {
	path := ""
	if len(args) > index {
		path = args[index]
	} else {
		a, err := newApp(nil)
		if err != nil {
			return nil, err
		}
		a.Close()
		path = a.cfg.ReportPath
	}
	return aggregator.NewAggregator(report.NewFileStore(path)), nil
}

func format() string {
	if outputJSON {
		return "json"
	}
	return outputFormat
}

func runShowSummary(cmd *cobra.Command, args []string) error {
	agg, err := reportAggregator(args, 0)
	if err != nil {
		return err
	}
	summary, err := agg.Summary(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to summarize report: %w", err)
	}

	switch format() {
	case "json":
		return writeJSON(os.Stdout, summary)
	case "yaml":
		return writeYAML(os.Stdout, summary)
	}

	fmt.Printf("\nMigration Report Summary\n\n")
	table := newTable([]string{"Metric", "Value"})
	table.Append([]string{"Channels", strconv.Itoa(summary.Channels)})
	table.Append([]string{"Succeeded", strconv.Itoa(summary.Succeeded)})
	table.Append([]string{"Failed", strconv.Itoa(summary.Failed)})
	table.Append([]string{"Tasks Created", strconv.Itoa(summary.TasksCreated)})
	table.Append([]string{"Tasks Executed", strconv.Itoa(summary.TasksExecuted)})
	table.Append([]string{"Tasks Failed", strconv.Itoa(summary.TasksFailed)})
	table.Append([]string{"Tasks Pending", strconv.Itoa(summary.TasksPending)})
	table.Append([]string{"Expected Item Sets", strconv.Itoa(summary.Expected.ItemSets)})
	table.Append([]string{"Expected Items", strconv.Itoa(summary.Expected.Items)})
	table.Append([]string{"Expected Media", strconv.Itoa(summary.Expected.Media)})
	if summary.Counted > 0 {
		table.Append([]string{"Repository Item Sets", strconv.Itoa(summary.Repository.ItemSets)})
		table.Append([]string{"Repository Items", strconv.Itoa(summary.Repository.Items)})
		table.Append([]string{"Repository Media", strconv.Itoa(summary.Repository.Media)})
	}
	table.Render()

	return nil
}

func runShowChannels(cmd *cobra.Command, args []string) error {
	agg, err := reportAggregator(args, 0)
	if err != nil {
		return err
	}
	rows, err := agg.Channels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	if showFailed {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Status != domain.StatusSuccess {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	switch format() {
	case "json":
		return writeJSON(os.Stdout, rows)
	case "yaml":
		return writeYAML(os.Stdout, rows)
	}

	table := newTable([]string{"Slug", "Status", "Site", "Tasks", "Executed", "Items", "In Omeka", "Error"})
	for _, row := range rows {
		inOmeka := "-"
		if row.Repository != nil {
			inOmeka = strconv.Itoa(row.Repository.Items)
		}
		table.Append([]string{
			row.Slug,
			string(row.Status),
			optionalInt(row.SiteID),
			strconv.Itoa(row.TasksCreated),
			strconv.Itoa(row.TasksExecuted),
			strconv.Itoa(row.Expected.Items),
			inOmeka,
			optionalString(row.Error),
		})
	}
	table.Render()

	return nil
}

func runShowChannel(cmd *cobra.Command, args []string) error {
	agg, err := reportAggregator(args, 1)
	if err != nil {
		return err
	}
	rep, err := agg.Report(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	i := rep.Find(args[0])
	if i < 0 {
		return fmt.Errorf("channel %s is not in the report", args[0])
	}
	outcome := rep[i]

	switch format() {
	case "json":
		return writeJSON(os.Stdout, outcome)
	case "yaml":
		return writeYAML(os.Stdout, outcome)
	}

	fmt.Printf("\nChannel: %s (%s)\n\n", outcome.Name, outcome.Slug)
	table := newTable([]string{"Field", "Value"})
	table.Append([]string{"URL", outcome.URL})
	table.Append([]string{"Editor", outcome.Editor})
	table.Append([]string{"Status", string(outcome.Status)})
	table.Append([]string{"Site ID", optionalInt(outcome.SiteID)})
	table.Append([]string{"User ID", optionalInt(outcome.UserID)})
	table.Append([]string{"Item Sets", strconv.Itoa(outcome.ItemSets)})
	table.Append([]string{"Items", strconv.Itoa(outcome.Items)})
	table.Append([]string{"Media", strconv.Itoa(outcome.Media)})
	table.Append([]string{"Error", optionalString(outcome.ErrorMessage)})
	table.Render()

	if len(outcome.TasksCreated) > 0 {
		fmt.Println()
		tasksTable := newTable([]string{"Importer", "Task", "Job", "New Task", "Error"})
		for _, t := range outcome.TasksCreated {
			tasksTable.Append([]string{t.Importer, strconv.Itoa(t.ID), optionalInt(t.JobID), optionalInt(t.NewTaskID), optionalString(t.Error)})
		}
		tasksTable.Render()
	}

	return nil
}

// printOutcomes prints the channels of rep, restricted to only when it is not nil
func printOutcomes(rep domain.Report, only map[string]bool) error {
	if outputJSON {
		var out domain.Report
		for _, o := range rep {
			if only == nil || only[o.Slug] {
				out = append(out, o)
			}
		}
		return writeJSON(os.Stdout, out)
	}

	succeeded, total := 0, 0
	table := newTable([]string{"Slug", "Status", "Site", "Tasks", "Error"})
	for _, o := range rep {
		if only != nil && !only[o.Slug] {
			continue
		}
		total++
		if o.Succeeded() {
			succeeded++
		}
		table.Append([]string{o.Slug, string(o.Status), optionalInt(o.SiteID), strconv.Itoa(len(o.TasksCreated)), optionalString(o.ErrorMessage)})
	}
	table.Render()
	fmt.Printf("\n%d of %d channels succeeded\n", succeeded, total)
	return nil
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

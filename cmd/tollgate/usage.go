package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/usage"
	"tollgate-hq/tollgate/pkg/usage/export"
	"tollgate-hq/tollgate/pkg/usage/retention"
)

var usageFlags struct {
	keyID      string
	since      string
	until      string
	success    string
	limit      int
	desc       bool
	output     string
	format     string
	outFile    string
	pretty     bool
	days       int
	maxRecords int64
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage event log",
	Long: `Query, export and prune the append-only usage event log.

Time filters accept a duration relative to now ("24h"), a date ("2026-10-01")
or an RFC 3339 timestamp.

Examples:
  # Failed requests of one key in the last day
  tollgate usage query --key 3f1c... --since 24h --success false

  # Export everything as CSV
  tollgate usage export --format csv --output usage.csv

  # Drop events older than 90 days
  tollgate usage prune --days 90`,
}

var usageQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List usage events",
	Args:  cobra.NoArgs,
	RunE:  queryUsage,
}

var usageExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage events as JSON or CSV",
	Args:  cobra.NoArgs,
	RunE:  exportUsage,
}

var usagePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events outside the retention window",
	Long: `Delete events older than the retention period and the oldest events
beyond the record cap. Flags override usage.retention in the configuration.`,
	Args: cobra.NoArgs,
	RunE: pruneUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageQueryCmd, usageExportCmd, usagePruneCmd)

	for _, c := range []*cobra.Command{usageQueryCmd, usageExportCmd} {
		c.Flags().StringVar(&usageFlags.keyID, "key", "", "only events of this key id")
		c.Flags().StringVar(&usageFlags.since, "since", "", "only events at or after this time")
		c.Flags().StringVar(&usageFlags.until, "until", "", "only events before this time")
		c.Flags().StringVar(&usageFlags.success, "success", "", "only successful (true) or failed (false) events")
		c.Flags().IntVar(&usageFlags.limit, "limit", 0, "maximum number of events (0 = unlimited)")
		c.Flags().BoolVar(&usageFlags.desc, "desc", false, "newest events first")
	}
	usageQueryCmd.Flags().StringVarP(&usageFlags.output, "output", "o", "text", "output format (text, json, csv)")

	usageExportCmd.Flags().StringVarP(&usageFlags.format, "format", "f", "json", "export format (json, csv)")
	usageExportCmd.Flags().StringVar(&usageFlags.outFile, "output", "", "output file (stdout when empty)")
	usageExportCmd.Flags().BoolVar(&usageFlags.pretty, "pretty", false, "indent JSON output")

	usagePruneCmd.Flags().IntVar(&usageFlags.days, "days", -1, "retention in days (overrides config)")
	usagePruneCmd.Flags().Int64Var(&usageFlags.maxRecords, "max-records", -1, "record cap (overrides config)")
}

// parseTimeFlag accepts a duration before now, a date or an RFC 3339 time.
func parseTimeFlag(name, value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		t := now.Add(-d).UTC()
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, cli.NewConfigError(name, fmt.Sprintf("cannot parse %q as a duration, date or RFC 3339 time", value))
}

// buildQuery turns the filter flags into a usage.Query.
func buildQuery(now time.Time) (*usage.Query, error) {
	q := &usage.Query{
		KeyID:     strings.TrimSpace(usageFlags.keyID),
		Limit:     usageFlags.limit,
		SortOrder: usage.SortAsc,
	}
	if usageFlags.desc {
		q.SortOrder = usage.SortDesc
	}
	if q.Limit < 0 {
		return nil, cli.NewConfigError("limit", "must not be negative")
	}

	var err error
	if q.StartTime, err = parseTimeFlag("since", usageFlags.since, now); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTimeFlag("until", usageFlags.until, now); err != nil {
		return nil, err
	}
	if usageFlags.success != "" {
		ok, err := strconv.ParseBool(usageFlags.success)
		if err != nil {
			return nil, cli.NewConfigError("success", fmt.Sprintf("expected true or false, got %q", usageFlags.success))
		}
		q.Success = &ok
	}
	return q, nil
}

// withUsageStorage opens the configured usage log for the duration of fn.
func withUsageStorage(cmd *cobra.Command, fn func(cfg *config.Config, events usage.Storage) error) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	events, err := openUsageStorage(&cfg.Usage)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer events.Close()

	if err := fn(cfg, events); err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	return nil
}

func eventTable(events []*usage.Event) *cli.Table {
	table := &cli.Table{Headers: []string{"ID", "KEY", "SEQUENCE", "TIMESTAMP", "RESPONSE_MS", "SUCCESS"}}
	for _, ev := range events {
		responseMs := ""
		if ev.ResponseTimeMs != nil {
			responseMs = strconv.FormatInt(*ev.ResponseTimeMs, 10)
		}
		table.Append(
			ev.ID,
			ev.KeyID,
			strconv.FormatInt(ev.Sequence, 10),
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			responseMs,
			strconv.FormatBool(ev.Success),
		)
	}
	return table
}

func queryUsage(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(usageFlags.output)
	if err != nil {
		return err
	}
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	return withUsageStorage(cmd, func(_ *config.Config, events usage.Storage) error {
		found, err := events.Query(cmd.Context(), q)
		if err != nil {
			return err
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), eventTable(found))
	})
}

func exportUsage(cmd *cobra.Command, _ []string) error {
	var exporter usage.Exporter
	switch strings.ToLower(usageFlags.format) {
	case "json":
		exporter = export.NewJSONExporter(usageFlags.pretty)
	case "csv":
		exporter = export.NewCSVExporter(true)
	default:
		return cli.NewConfigError("format", fmt.Sprintf("unsupported export format %q (use json or csv)", usageFlags.format))
	}
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	return withUsageStorage(cmd, func(_ *config.Config, events usage.Storage) error {
		found, err := events.Query(cmd.Context(), q)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if usageFlags.outFile != "" {
			f, err := os.Create(usageFlags.outFile)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", usageFlags.outFile, err)
			}
			defer f.Close()
			w = f
		}

		if err := exporter.Export(cmd.Context(), found, w); err != nil {
			return err
		}
		if usageFlags.outFile != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d events to %s\n", len(found), usageFlags.outFile)
		}
		return nil
	})
}

func pruneUsage(cmd *cobra.Command, _ []string) error {
	return withUsageStorage(cmd, func(cfg *config.Config, events usage.Storage) error {
		rc := cfg.Usage.Retention
		if usageFlags.days >= 0 {
			rc.Days = usageFlags.days
		}
		if usageFlags.maxRecords >= 0 {
			rc.MaxRecords = usageFlags.maxRecords
		}
		if rc.Days == 0 && rc.MaxRecords == 0 {
			return cli.NewConfigError("retention", "nothing to prune: set --days or --max-records (or usage.retention)")
		}

		pruner := retention.NewPruner(events, &retention.Config{
			Days:                rc.Days,
			MaxRecords:          rc.MaxRecords,
			ArchiveBeforeDelete: rc.ArchiveBeforeDelete,
			ArchivePath:         rc.ArchivePath,
		})
		deleted, err := pruner.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d events\n", deleted)
		return nil
	})
}

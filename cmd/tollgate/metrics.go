package main

import (
	"time"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/analytics"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/usage"
)

var metricsFlags struct {
	perKey bool
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print dashboard metrics as JSON",
	Long: `Compute the dashboard metrics (totals, success rate, average response
time and the last seven UTC days) from the usage log and print them as JSON.`,
	Args: cobra.NoArgs,
	RunE: printMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.Flags().BoolVar(&metricsFlags.perKey, "per-key", false, "also print event counts per key")
}

type metricsOutput struct {
	analytics.Metrics
	KeyUsage map[string]int64 `json:"keyUsage,omitempty"`
}

func printMetrics(cmd *cobra.Command, _ []string) error {
	return withUsageStorage(cmd, func(cfg *config.Config, events usage.Storage) error {
		agg := analytics.New(events, &analytics.Config{
			BreakerFailures: cfg.Analytics.BreakerFailures,
			BreakerTimeout:  cfg.Analytics.BreakerTimeout,
			QueryTimeout:    cfg.Analytics.QueryTimeout,
		})

		out := metricsOutput{Metrics: agg.Compute(cmd.Context(), time.Now())}
		if metricsFlags.perKey {
			out.KeyUsage = agg.KeyUsage(cmd.Context())
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), out)
	})
}

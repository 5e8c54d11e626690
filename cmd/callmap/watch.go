package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"callmap/internal/core/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch [roots...]",
	Short: "Analyze once, then re-analyze changed modules until interrupted",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, report, err := analyze(ctx, args)
	if err != nil {
		return err
	}
	defer a.Close()
	printSummary(cmd, report)

	return a.Watch(ctx, func(report *app.Report, err error) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "update failed: %v\n", err)
			return
		}
		printSummary(cmd, report)
	})
}

func printSummary(cmd *cobra.Command, report *app.Report) {
	if flagFormat == "json" {
		_ = printJSON(cmd.OutOrStdout(), map[string]any{
			"run_id":      report.RunID,
			"modules":     report.Modules,
			"failed":      report.Failed,
			"stats":       report.Stats,
			"diagnostics": len(report.Diagnostics),
			"duration_ms": report.Duration.Milliseconds(),
		})
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d modules (%d failed), %d symbols, %d edges, %d diagnostics in %s\n",
		report.Modules, report.Failed, report.Stats.Symbols, report.Stats.Edges, len(report.Diagnostics), report.Duration)
}

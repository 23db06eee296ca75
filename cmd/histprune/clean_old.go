package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/histprune/internal/cleanup"
	"github.com/rpattn/histprune/internal/report"
)

var cleanOldCmd = &cobra.Command{
	Use:   "clean-old [models...]",
	Short: "Remove history rows older than a retention threshold",
	Long: `Delete every version recorded more than --days ago for the named
models, regardless of whether the version duplicates its neighbour.

Examples:
  histprune clean-old project --days 365
  histprune clean-old --auto --days 90 --dry-run`,
	RunE: runCleanOld,
}

var (
	oldAuto     bool
	oldDryRun   bool
	oldDays     int
	oldStepSize int64
	oldReport   string
)

func init() {
	cleanOldCmd.Flags().BoolVar(&oldAuto, "auto", false, "purge every registered model")
	cleanOldCmd.Flags().BoolVar(&oldDryRun, "dry-run", false, "count candidates without deleting them")
	cleanOldCmd.Flags().IntVar(&oldDays, "days", 30, "remove versions recorded more than N days ago")
	cleanOldCmd.Flags().Int64Var(&oldStepSize, "step-size", 0, "entity id range width per batch (default from config)")
	cleanOldCmd.Flags().StringVar(&oldReport, "report", "", "write a run summary to this file (.csv or .xlsx)")
	rootCmd.AddCommand(cleanOldCmd)
}

func runCleanOld(cmd *cobra.Command, args []string) error {
	models, app, err := resolveTargets(cmd, args, oldAuto, false)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := cleanup.PurgeOptions{
		OlderThanDays: oldDays,
		DryRun:        oldDryRun,
		StepSize:      oldStepSize,
	}

	run, err := app.service.Purge(cmd.Context(), models, opts)
	printRunSummary(run, "outdated")
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if oldReport != "" {
		if err := report.Write(oldReport, run); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", oldReport)
	}
	return nil
}

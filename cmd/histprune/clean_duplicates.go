package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/histprune/internal/cleanup"
	"github.com/rpattn/histprune/internal/domain"
	"github.com/rpattn/histprune/internal/report"
)

var cleanDuplicatesCmd = &cobra.Command{
	Use:   "clean-duplicates [models...]",
	Short: "Remove consecutive history rows with identical tracked fields",
	Long: `Scan the history tables of the named models and delete every version
whose tracked fields are identical to the immediately preceding version of the
same entity. The oldest version of each entity is always kept.

Examples:
  histprune clean-duplicates project asset      # clean two models
  histprune clean-duplicates --auto             # clean every registered model
  histprune clean-duplicates project --dry-run  # report without deleting
  histprune clean-duplicates project -m 60      # only versions from the last hour`,
	RunE: runCleanDuplicates,
}

var (
	cleanAuto     bool
	cleanDryRun   bool
	cleanMinutes  int
	cleanStepSize int64
	cleanPortable bool
	reportPath    string
)

func init() {
	cleanDuplicatesCmd.Flags().BoolVar(&cleanAuto, "auto", false, "clean every registered model")
	cleanDuplicatesCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "count duplicates without deleting them")
	cleanDuplicatesCmd.Flags().IntVarP(&cleanMinutes, "minutes", "m", 0, "only examine versions recorded in the last N minutes")
	cleanDuplicatesCmd.Flags().Int64Var(&cleanStepSize, "step-size", 0, "entity id range width per batch (default from config)")
	cleanDuplicatesCmd.Flags().BoolVar(&cleanPortable, "portable-scan", false, "compare rows in the client instead of with window functions")
	cleanDuplicatesCmd.Flags().StringVar(&reportPath, "report", "", "write a run summary to this file (.csv or .xlsx)")
	rootCmd.AddCommand(cleanDuplicatesCmd)
}

func runCleanDuplicates(cmd *cobra.Command, args []string) error {
	models, app, err := resolveTargets(cmd, args, cleanAuto, cleanPortable)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := cleanup.RunOptions{DryRun: cleanDryRun, StepSize: cleanStepSize}
	if cleanMinutes > 0 {
		minutes := cleanMinutes
		opts.CutoffMinutes = &minutes
	}

	run, err := app.service.Run(cmd.Context(), models, opts)
	printRunSummary(run, "duplicate")
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if reportPath != "" {
		if err := report.Write(reportPath, run); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", reportPath)
	}
	return nil
}

// resolveTargets loads the application wiring and maps command arguments to
// registered models. Unknown names are warned about, not fatal, unless no
// requested model resolves at all.
func resolveTargets(cmd *cobra.Command, args []string, auto, portable bool) ([]domain.TrackedModel, *appContext, error) {
	if !auto && len(args) == 0 {
		return nil, nil, fmt.Errorf("no models given; name models or pass --auto")
	}

	app, err := newAppContext(cmd, portable)
	if err != nil {
		return nil, nil, err
	}

	if auto {
		models := app.registry.All()
		if len(models) == 0 {
			app.Close()
			return nil, nil, fmt.Errorf("no models registered in config")
		}
		return models, app, nil
	}

	models, unknown := app.registry.Resolve(args)
	for _, name := range unknown {
		app.logger.Warn("requested model is not registered", zap.String("model", name))
		fmt.Fprintf(os.Stderr, "Warning: model %q is not registered, skipping\n", name)
	}
	if len(models) == 0 {
		app.Close()
		return nil, nil, fmt.Errorf("none of the requested models are registered")
	}
	return models, app, nil
}

func printRunSummary(run cleanup.Report, kind string) {
	for _, result := range run.Results {
		if result.Skipped {
			fmt.Printf("Skipped %s: %s\n", result.Model, result.SkipReason)
			continue
		}
		if run.DryRun {
			fmt.Printf("Would remove %d %s historical records for %s\n", result.Removed, kind, result.Model)
		} else {
			fmt.Printf("Removed %d %s historical records for %s\n", result.Removed, kind, result.Model)
		}
		for _, batchErr := range result.BatchErrors {
			fmt.Fprintf(os.Stderr, "Warning: batch %s of %s failed: %v\n",
				batchErr.Range, batchErr.Model, batchErr.Err)
		}
	}
}

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/histprune/internal/cleanup"
)

const sheetName = "Cleanup"

var headerRow = []string{
	"model", "examined", "removed", "skipped", "skip_reason", "failed_batches",
}

// summaryRows renders a run report as tabular rows, one per model, with the
// run metadata in a leading banner row. Both output formats share it.
func summaryRows(run cleanup.Report) [][]string {
	rows := [][]string{
		{
			"run_id=" + run.RunID.String(),
			"started=" + run.StartedAt.UTC().Format(time.RFC3339),
			"finished=" + run.FinishedAt.UTC().Format(time.RFC3339),
			"dry_run=" + strconv.FormatBool(run.DryRun),
			"", "",
		},
		headerRow,
	}

	for _, result := range run.Results {
		failed := make([]string, 0, len(result.BatchErrors))
		for _, batchErr := range result.BatchErrors {
			failed = append(failed, batchErr.Range.String())
		}
		rows = append(rows, []string{
			result.Model,
			strconv.FormatInt(result.Examined, 10),
			strconv.FormatInt(result.Removed, 10),
			strconv.FormatBool(result.Skipped),
			result.SkipReason,
			strings.Join(failed, " "),
		})
	}
	return rows
}

// WriteCSV writes the run summary as CSV.
func WriteCSV(w io.Writer, run cleanup.Report) error {
	csvWriter := csv.NewWriter(w)
	for _, row := range summaryRows(run) {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the run summary as an xlsx workbook at path.
func WriteXLSX(path string, run cleanup.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, row := range summaryRows(run) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+1, err)
		}
		values := make([]any, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Write picks the output format from the file extension, defaulting to CSV
// for anything that is not .xlsx.
func Write(path string, run cleanup.Report) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return WriteXLSX(path, run)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := WriteCSV(f, run); err != nil {
		return err
	}
	return f.Close()
}

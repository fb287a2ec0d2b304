// Package results accumulates per-scenario outcomes and exports them to
// spreadsheets, JSON, and optionally a Postgres store.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	resultSheet   = "TestResult"
	evidenceSheet = "Evidence"
)

var resultHeaders = []string{"No", "Prompt", "Expected", "Model", "Answer", "Result", "Elapsed", "Evidence"}

// Row is one scenario's outcome. Appended, never mutated.
type Row struct {
	ScenarioRow int           `json:"scenario_row"`
	Prompt      string        `json:"prompt"`
	Expected    string        `json:"expected"`
	Model       string        `json:"model"`
	Answer      string        `json:"answer"`
	Passed      bool          `json:"passed"`
	Incomplete  bool          `json:"incomplete"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Note        string        `json:"note,omitempty"`
	Screenshot  []byte        `json:"-"`
}

// Result renders the pass/fail signal as the spreadsheet cell value.
func (r Row) Result() string {
	switch {
	case r.Incomplete:
		return "incomplete"
	case r.Passed:
		return "pass"
	default:
		return "fail"
	}
}

// Exporter holds an in-memory result table for one (username, model) output
// file. It is confined to one worker, so no locking is needed.
type Exporter struct {
	logger *zap.Logger
	rows   []Row
}

// NewExporter creates an empty Exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("exporter")}
}

// Record appends one row to the table.
func (e *Exporter) Record(row Row) {
	e.rows = append(e.rows, row)
}

// Len reports how many rows have been recorded.
func (e *Exporter) Len() int {
	return len(e.rows)
}

// Rows returns a copy of the recorded table.
func (e *Exporter) Rows() []Row {
	out := make([]Row, len(e.rows))
	copy(out, e.rows)
	return out
}

// Flush writes the table to an xlsx workbook at path, overwriting any prior
// output for this run. Screenshots land on a separate Evidence sheet with a
// hyperlink from the result row. Calling Flush again without new records
// produces the same file.
func (e *Exporter) Flush(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), resultSheet)
	if _, err := f.NewSheet(evidenceSheet); err != nil {
		return fmt.Errorf("failed to create evidence sheet: %w", err)
	}

	if err := e.writeHeaders(f); err != nil {
		return err
	}
	for i, row := range e.rows {
		if err := e.writeRow(f, i, row); err != nil {
			return err
		}
	}
	e.autoFitColumns(f)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save results workbook: %w", err)
	}
	e.logger.Info("Results flushed.", zap.String("path", path), zap.Int("rows", len(e.rows)))
	return nil
}

func (e *Exporter) writeHeaders(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for col, header := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(resultSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(resultSheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeRow(f *excelize.File, index int, row Row) error {
	rowNum := index + 2

	values := []interface{}{
		index + 1,
		row.Prompt,
		row.Expected,
		row.Model,
		row.Answer,
		row.Result(),
		row.Elapsed.Round(time.Millisecond).String(),
	}
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
		if err := f.SetCellValue(resultSheet, cell, v); err != nil {
			return err
		}
	}

	evidenceCell, _ := excelize.CoordinatesToCellName(len(resultHeaders), rowNum)
	if len(row.Screenshot) == 0 {
		return f.SetCellValue(resultSheet, evidenceCell, "")
	}

	anchor, _ := excelize.CoordinatesToCellName(1, rowNum)
	if err := f.AddPictureFromBytes(evidenceSheet, anchor, &excelize.Picture{
		Extension: ".png",
		File:      row.Screenshot,
		Format:    &excelize.GraphicOptions{ScaleX: 0.25, ScaleY: 0.25},
	}); err != nil {
		e.logger.Warn("Could not embed screenshot.", zap.Int("row", rowNum), zap.Error(err))
		return f.SetCellValue(resultSheet, evidenceCell, "image error")
	}

	if err := f.SetCellValue(resultSheet, evidenceCell, "see evidence"); err != nil {
		return err
	}
	return f.SetCellHyperLink(resultSheet, evidenceCell,
		fmt.Sprintf("%s!%s", evidenceSheet, anchor), "Location")
}

func (e *Exporter) autoFitColumns(f *excelize.File) {
	widths := make([]int, len(resultHeaders))
	for i, h := range resultHeaders {
		widths[i] = len(h)
	}
	for _, row := range e.rows {
		for i, v := range []string{row.Prompt, row.Expected, row.Model, row.Answer} {
			if n := len(v); n > widths[i+1] {
				widths[i+1] = n
			}
		}
	}
	for i, w := range widths {
		if w > 60 {
			w = 60
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(resultSheet, name, name, float64(w+2))
	}
}

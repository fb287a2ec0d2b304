package results

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// LoadFile reads a previously flushed workbook back into rows. Screenshots
// are not recovered; the evaluate command only needs the text columns.
func LoadFile(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	defer f.Close()

	cells, err := f.GetRows(resultSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", resultSheet, err)
	}
	if len(cells) < 2 {
		return nil, nil
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, c := range cells[1:] {
		row := Row{
			Prompt:   at(c, 1),
			Expected: at(c, 2),
			Model:    at(c, 3),
			Answer:   at(c, 4),
		}
		if n, err := strconv.Atoi(at(c, 0)); err == nil {
			row.ScenarioRow = n
		}
		switch at(c, 5) {
		case "pass":
			row.Passed = true
		case "incomplete":
			row.Incomplete = true
		}
		if d, err := time.ParseDuration(at(c, 6)); err == nil {
			row.Elapsed = d
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func at(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

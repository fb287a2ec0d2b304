// Package scenario loads spreadsheet-defined test cases.
package scenario

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrDataFormat is returned when the input spreadsheet is missing required
// columns or has no usable rows.
var ErrDataFormat = errors.New("invalid scenario data format")

// Scenario is one test case: a prompt, the signal expected in the answer, and
// the target model. Immutable once loaded; Row is the 1-based spreadsheet row
// it came from.
type Scenario struct {
	Prompt   string
	Expected string
	Model    string
	Row      int
}

// Scenarios is an ordered sequence of test cases.
type Scenarios []Scenario

// Header names accepted for each required column, matched case-insensitively.
// The original workbooks use "question"/"expected_result"; "prompt"/
// "expected" are accepted for hand-written fixtures.
var (
	promptHeaders   = []string{"prompt", "question"}
	expectedHeaders = []string{"expected", "expected_result", "expected_context"}
	modelHeaders    = []string{"model", "model_name"}
)

// Load parses the spreadsheet into an ordered sequence of scenarios. The
// prompt and expected columns are required; the model column is optional and
// defaults to the empty string (the UI's current model).
func Load(path, sheet string) (Scenarios, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario file %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: sheet %q has no data rows", ErrDataFormat, sheet)
	}

	promptCol := findColumn(rows[0], promptHeaders)
	expectedCol := findColumn(rows[0], expectedHeaders)
	modelCol := findColumn(rows[0], modelHeaders)
	if promptCol < 0 || expectedCol < 0 {
		return nil, fmt.Errorf("%w: sheet %q is missing a prompt or expected column", ErrDataFormat, sheet)
	}

	scenarios := make(Scenarios, 0, len(rows)-1)
	for i, row := range rows[1:] {
		prompt := cell(row, promptCol)
		if prompt == "" {
			continue
		}
		s := Scenario{
			Prompt:   prompt,
			Expected: cell(row, expectedCol),
			Row:      i + 2,
		}
		if modelCol >= 0 {
			s.Model = cell(row, modelCol)
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no non-empty prompts", ErrDataFormat, sheet)
	}
	return scenarios, nil
}

// Shuffled returns a randomized permutation: same multiset, different order.
// Used to vary load patterns across workers; the receiver is not modified.
func (s Scenarios) Shuffled() Scenarios {
	out := make(Scenarios, len(s))
	copy(out, s)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Sample returns up to n scenarios drawn without replacement. n <= 0 or
// n >= len returns a copy of the full set.
func (s Scenarios) Sample(n int) Scenarios {
	if n <= 0 || n >= len(s) {
		out := make(Scenarios, len(s))
		copy(out, s)
		return out
	}
	return s.Shuffled()[:n]
}

// Models returns the distinct model names in first-seen order.
func (s Scenarios) Models() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sc := range s {
		if !seen[sc.Model] {
			seen[sc.Model] = true
			out = append(out, sc.Model)
		}
	}
	return out
}

// ForModel returns the subsequence targeting the given model, in order.
func (s Scenarios) ForModel(model string) Scenarios {
	var out Scenarios
	for _, sc := range s {
		if sc.Model == model {
			out = append(out, sc)
		}
	}
	return out
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

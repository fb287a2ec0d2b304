package scenario

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeWorkbook creates a scenario spreadsheet fixture on disk.
func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}

	path := filepath.Join(t.TempDir(), "scenarios.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, "ChatCases", [][]interface{}{
		{"Question", "Expected_Result", "Model"},
		{"What is AiKnow?", "knowledge platform", "gpt-4o"},
		{"   ", "ignored because prompt is blank", "gpt-4o"},
		{"Summarize the handbook", "handbook", ""},
	})

	scenarios, err := Load(path, "")
	require.NoError(t, err)

	// The blank prompt row is skipped but row numbering still tracks the sheet.
	want := Scenarios{
		{Prompt: "What is AiKnow?", Expected: "knowledge platform", Model: "gpt-4o", Row: 2},
		{Prompt: "Summarize the handbook", Expected: "handbook", Model: "", Row: 4},
	}
	if diff := cmp.Diff(want, scenarios); diff != "" {
		t.Errorf("loaded scenarios mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_NamedSheet(t *testing.T) {
	path := writeWorkbook(t, "Regression", [][]interface{}{
		{"prompt", "expected"},
		{"hello", "hi"},
	})

	scenarios, err := Load(path, "Regression")
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "hello", scenarios[0].Prompt)
}

func TestLoad_MissingColumns(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"prompt", "notes"},
		{"hello", "no expected column here"},
	})

	_, err := Load(path, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataFormat)
}

func TestLoad_EmptySheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"prompt", "expected"},
	})

	_, err := Load(path, "")
	assert.ErrorIs(t, err, ErrDataFormat)
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), "")
	require.Error(t, err)
}

func TestShuffled_IsPermutation(t *testing.T) {
	in := Scenarios{
		{Prompt: "a", Row: 2}, {Prompt: "b", Row: 3}, {Prompt: "c", Row: 4},
		{Prompt: "d", Row: 5}, {Prompt: "e", Row: 6}, {Prompt: "f", Row: 7},
	}

	out := in.Shuffled()
	require.Len(t, out, len(in))

	// Same multiset of prompts regardless of order.
	want := prompts(in)
	got := prompts(out)
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)

	// The receiver is untouched.
	assert.Equal(t, "a", in[0].Prompt)
	assert.Equal(t, "f", in[5].Prompt)
}

func TestSample(t *testing.T) {
	in := Scenarios{{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"}}

	assert.Len(t, in.Sample(2), 2)
	assert.Len(t, in.Sample(0), 3)
	assert.Len(t, in.Sample(10), 3)

	sampled := in.Sample(2)
	all := prompts(in)
	for _, p := range prompts(sampled) {
		assert.Contains(t, all, p)
	}
}

func TestModelsAndForModel(t *testing.T) {
	in := Scenarios{
		{Prompt: "a", Model: "m1"},
		{Prompt: "b", Model: "m2"},
		{Prompt: "c", Model: "m1"},
		{Prompt: "d", Model: ""},
	}

	assert.Equal(t, []string{"m1", "m2", ""}, in.Models())
	assert.Equal(t, []string{"a", "c"}, prompts(in.ForModel("m1")))
	assert.Equal(t, []string{"d"}, prompts(in.ForModel("")))
	assert.Empty(t, in.ForModel("missing"))
}

func prompts(s Scenarios) []string {
	out := make([]string, len(s))
	for i, sc := range s {
		out[i] = sc.Prompt
	}
	return out
}

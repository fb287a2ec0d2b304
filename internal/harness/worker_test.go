package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/technica-vn/aiknow-probe/internal/accounts"
	"github.com/technica-vn/aiknow-probe/internal/pages"
	"github.com/technica-vn/aiknow-probe/internal/results"
	"github.com/technica-vn/aiknow-probe/internal/scenario"
)

// fakeApp scripts the whole page layer for one worker run.
type fakeApp struct {
	loginErr  error
	navErr    error
	selectErr map[string]error
	askErr    map[string]error // keyed by prompt
	answers   map[string]string

	loggedIn      string
	selected      []string
	asked         []string
	conversations int
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		selectErr: make(map[string]error),
		askErr:    make(map[string]error),
		answers:   make(map[string]string),
	}
}

func (f *fakeApp) Login(ctx context.Context, username, password string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = username
	return nil
}

func (f *fakeApp) OpenChat(ctx context.Context) error { return f.navErr }

func (f *fakeApp) SelectModel(ctx context.Context, name string) error {
	if err := f.selectErr[name]; err != nil {
		return err
	}
	f.selected = append(f.selected, name)
	return nil
}

func (f *fakeApp) NewConversation(ctx context.Context) error {
	f.conversations++
	return nil
}

func (f *fakeApp) Ask(ctx context.Context, prompt string) (pages.Answer, error) {
	f.asked = append(f.asked, prompt)
	answer := pages.Answer{Text: f.answers[prompt], Elapsed: 100 * time.Millisecond}
	return answer, f.askErr[prompt]
}

func (f *fakeApp) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func newTestWorker(t *testing.T, app *fakeApp, dir string) *Worker {
	t.Helper()
	return NewWorker(Deps{
		Logger:  zap.NewNop(),
		Account: accounts.Account{Username: "auto_user0001", Password: "pw"},
		Open:    func(ctx context.Context) error { return nil },
		Auth:    app,
		Nav:     app,
		Chat:    app,
		Shot:    app,
		NewRecorder: func() Recorder {
			return results.NewExporter(zap.NewNop())
		},
		OutputPath: func(username, model string) string {
			return filepath.Join(dir, fmt.Sprintf("%s_%s", username, model))
		},
		Format: "xlsx",
	})
}

func readResultRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("TestResult")
	require.NoError(t, err)
	return rows
}

func TestRun_OneFilePerModel(t *testing.T) {
	app := newFakeApp()
	app.answers["p1"] = "contains alpha signal"
	app.answers["p2"] = "no signal here"
	app.answers["p3"] = "gamma"

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	scenarios := scenario.Scenarios{
		{Prompt: "p1", Expected: "alpha", Model: "m1", Row: 2},
		{Prompt: "p2", Expected: "beta", Model: "m1", Row: 3},
		{Prompt: "p3", Expected: "gamma", Model: "m2", Row: 4},
	}
	require.NoError(t, w.Run(context.Background(), scenarios))
	assert.Equal(t, StateDone, w.State())
	assert.Equal(t, "auto_user0001", app.loggedIn)
	assert.Equal(t, []string{"m1", "m2"}, app.selected)
	assert.Equal(t, 2, app.conversations)

	m1 := readResultRows(t, filepath.Join(dir, "auto_user0001_m1.xlsx"))
	require.Len(t, m1, 3) // header + two rows
	assert.Equal(t, "pass", m1[1][5])
	assert.Equal(t, "fail", m1[2][5])

	m2 := readResultRows(t, filepath.Join(dir, "auto_user0001_m2.xlsx"))
	require.Len(t, m2, 2)
	assert.Equal(t, "pass", m2[1][5])
}

func TestRun_EmptyExpectationPassesOnAnyAnswer(t *testing.T) {
	app := newFakeApp()
	app.answers["p1"] = "anything at all"

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	scenarios := scenario.Scenarios{{Prompt: "p1", Expected: "", Model: "", Row: 2}}
	require.NoError(t, w.Run(context.Background(), scenarios))

	rows := readResultRows(t, filepath.Join(dir, "auto_user0001_default.xlsx"))
	require.Len(t, rows, 2)
	assert.Equal(t, "pass", rows[1][5])
	// The default model selects nothing.
	assert.Empty(t, app.selected)
}

func TestRun_LoginFailureAbortsRun(t *testing.T) {
	app := newFakeApp()
	app.loginErr = fmt.Errorf("%w: bad password", pages.ErrAuthenticationFailed)

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	err := w.Run(context.Background(), scenario.Scenarios{{Prompt: "p1", Model: "m1", Row: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, pages.ErrAuthenticationFailed)
	assert.Equal(t, StateAborted, w.State())
	assert.Empty(t, app.asked)

	// The failure screenshot lands next to the results.
	shot := filepath.Join(dir, "auto_user0001_aborted.png")
	data, err := os.ReadFile(shot)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestRun_ModelFailureDoesNotSinkOtherModels(t *testing.T) {
	app := newFakeApp()
	app.selectErr["m1"] = fmt.Errorf("%w: %q", pages.ErrModelNotFound, "m1")
	app.answers["p2"] = "fine"

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	err := w.Run(context.Background(), scenario.Scenarios{
		{Prompt: "p1", Expected: "x", Model: "m1", Row: 2},
		{Prompt: "p2", Expected: "fine", Model: "m2", Row: 3},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pages.ErrModelNotFound)
	assert.Equal(t, StateAborted, w.State())

	// m2 still ran to completion and produced its file.
	rows := readResultRows(t, filepath.Join(dir, "auto_user0001_m2.xlsx"))
	require.Len(t, rows, 2)
	assert.Equal(t, "pass", rows[1][5])

	// m1 flushed its single failure row with the abort note.
	rows = readResultRows(t, filepath.Join(dir, "auto_user0001_m1.xlsx"))
	require.Len(t, rows, 2)
	assert.Equal(t, "fail", rows[1][5])
}

func TestRun_AskHardErrorAbandonsRestOfGroup(t *testing.T) {
	app := newFakeApp()
	app.askErr["p1"] = errors.New("browser crashed")

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	err := w.Run(context.Background(), scenario.Scenarios{
		{Prompt: "p1", Expected: "x", Model: "m1", Row: 2},
		{Prompt: "p2", Expected: "y", Model: "m1", Row: 3},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"p1"}, app.asked)

	rows := readResultRows(t, filepath.Join(dir, "auto_user0001_m1.xlsx"))
	require.Len(t, rows, 2) // only the failure row
}

func TestRun_IncompleteRecordedAndRunContinues(t *testing.T) {
	app := newFakeApp()
	app.answers["p1"] = "partial tex"
	app.askErr["p1"] = fmt.Errorf("%w after 2m", pages.ErrIncomplete)
	app.answers["p2"] = "complete"

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)

	err := w.Run(context.Background(), scenario.Scenarios{
		{Prompt: "p1", Expected: "partial", Model: "m1", Row: 2},
		{Prompt: "p2", Expected: "complete", Model: "m1", Row: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, StateDone, w.State())

	rows := readResultRows(t, filepath.Join(dir, "auto_user0001_m1.xlsx"))
	require.Len(t, rows, 3)
	assert.Equal(t, "incomplete", rows[1][5])
	assert.Equal(t, "pass", rows[2][5])
}

func TestRun_JSONFormat(t *testing.T) {
	app := newFakeApp()
	app.answers["p1"] = "hello"

	dir := t.TempDir()
	w := newTestWorker(t, app, dir)
	w.deps.Format = "both"

	require.NoError(t, w.Run(context.Background(), scenario.Scenarios{
		{Prompt: "p1", Expected: "hello", Model: "m1", Row: 2},
	}))

	assert.FileExists(t, filepath.Join(dir, "auto_user0001_m1.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "auto_user0001_m1.json"))
}

func TestRun_AbortIsLoggedWithState(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	app := newFakeApp()
	app.navErr = errors.New("chat surface never appeared")

	w := newTestWorker(t, app, t.TempDir())
	w.deps.Logger = zap.New(core)
	w.logger = zap.New(core)

	err := w.Run(context.Background(), scenario.Scenarios{{Prompt: "p1", Model: "m1", Row: 2}})
	require.Error(t, err)

	entries := logs.FilterMessage("run aborted").All()
	require.Len(t, entries, 1)
	assert.Contains(t, fmt.Sprint(entries[0].ContextMap()["error"]), "chat surface")
}

func TestFilterModels(t *testing.T) {
	in := scenario.Scenarios{
		{Prompt: "a", Model: "m1"},
		{Prompt: "b", Model: "m2"},
		{Prompt: "c", Model: "m3"},
	}
	out := filterModels(in, []string{"m1", "m3"})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Prompt)
	assert.Equal(t, "c", out[1].Prompt)
}

func TestDefaultOutputPath_Sanitizes(t *testing.T) {
	path := DefaultOutputPath("/tmp/out")("auto_user0001", "gpt 4o/mini")
	assert.Contains(t, path, "auto_user0001_gpt_4o_mini_")
	assert.NotContains(t, filepath.Base(path), "/")
	assert.NotContains(t, path, " ")
}

func TestPasses(t *testing.T) {
	assert.True(t, passes("", "any answer"))
	assert.False(t, passes("", "   "))
	assert.True(t, passes("Alpha", "the ALPHA signal"))
	assert.False(t, passes("beta", "the alpha signal"))
}

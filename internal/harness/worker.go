package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/technica-vn/aiknow-probe/internal/accounts"
	"github.com/technica-vn/aiknow-probe/internal/pages"
	"github.com/technica-vn/aiknow-probe/internal/results"
	"github.com/technica-vn/aiknow-probe/internal/scenario"
)

// Authenticatable signs a user into the application.
type Authenticatable interface {
	Login(ctx context.Context, username, password string) error
}

// ChatNavigator moves from the landing page to the chat surface.
type ChatNavigator interface {
	OpenChat(ctx context.Context) error
}

// Promptable drives a chat conversation.
type Promptable interface {
	SelectModel(ctx context.Context, name string) error
	NewConversation(ctx context.Context) error
	Ask(ctx context.Context, prompt string) (pages.Answer, error)
}

// Screenshotter captures the current viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Recorder accumulates result rows and writes them out.
type Recorder interface {
	Record(results.Row)
	Len() int
	Rows() []results.Row
	Flush(path string) error
	FlushJSON(path string) error
}

// Deps bundles everything a Worker needs. All fields are required unless
// noted otherwise.
type Deps struct {
	Logger  *zap.Logger
	Account accounts.Account

	Open func(ctx context.Context) error // navigates to the login URL
	Auth Authenticatable
	Nav  ChatNavigator
	Chat Promptable
	Shot Screenshotter

	NewRecorder func() Recorder
	// OutputPath yields the result file path for one (username, model) pair,
	// without extension.
	OutputPath func(username, model string) string
	Format     string // "xlsx", "json" or "both"

	Limiter *rate.Limiter // optional prompt pacing

	Store *results.Store // optional
	RunID string
}

// Worker runs a set of scenarios through one browser session as one account,
// grouping them by model and writing one result file per model.
type Worker struct {
	deps   Deps
	logger *zap.Logger
	state  State
}

func NewWorker(deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		deps:   deps,
		logger: logger.With(zap.String("username", deps.Account.Username)),
		state:  StateInit,
	}
}

// State reports the worker's current position in the run.
func (w *Worker) State() State { return w.state }

func (w *Worker) transition(next State) {
	w.logger.Debug("state transition",
		zap.String("from", string(w.state)),
		zap.String("to", string(next)))
	w.state = next
}

// Run executes all scenarios. Login or navigation failure aborts the whole
// run. A failure inside one model group abandons the rest of that group but
// the remaining groups still run, and whatever was recorded is flushed.
func (w *Worker) Run(ctx context.Context, scenarios scenario.Scenarios) error {
	if err := w.deps.Open(ctx); err != nil {
		return w.abort(ctx, fmt.Errorf("opening login page: %w", err))
	}
	if err := w.deps.Auth.Login(ctx, w.deps.Account.Username, w.deps.Account.Password); err != nil {
		return w.abort(ctx, fmt.Errorf("login as %s: %w", w.deps.Account.Username, err))
	}
	w.transition(StateLoggedIn)

	if err := w.deps.Nav.OpenChat(ctx); err != nil {
		return w.abort(ctx, fmt.Errorf("opening chat: %w", err))
	}
	w.transition(StateNavigated)

	var errs []error
	for _, model := range scenarios.Models() {
		if err := w.runModel(ctx, model, scenarios.ForModel(model)); err != nil {
			if ctx.Err() != nil {
				w.transition(StateAborted)
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		w.transition(StateAborted)
		return errors.Join(errs...)
	}
	w.transition(StateDone)
	return nil
}

func (w *Worker) runModel(ctx context.Context, model string, group scenario.Scenarios) error {
	logger := w.logger.With(zap.String("model", displayModel(model)))
	rec := w.deps.NewRecorder()

	runErr := w.drive(ctx, logger, model, group, rec)
	if runErr != nil {
		logger.Error("model group aborted",
			zap.String("state", string(w.state)),
			zap.Int("recorded", rec.Len()),
			zap.Error(runErr))
	}

	if rec.Len() > 0 || runErr == nil {
		if err := w.flush(ctx, model, rec); err != nil {
			logger.Error("flushing results", zap.Error(err))
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// drive pushes every scenario of one model group through the chat page.
// It stops on the first unrecovered error, after recording a failure row
// with a screenshot of where the page ended up.
func (w *Worker) drive(ctx context.Context, logger *zap.Logger, model string, group scenario.Scenarios, rec Recorder) error {
	if model != "" {
		if err := w.deps.Chat.SelectModel(ctx, model); err != nil {
			w.recordFailure(ctx, rec, scenario.Scenario{Model: model}, err)
			return fmt.Errorf("selecting model %q: %w", model, err)
		}
	}
	w.transition(StateModelSelected)

	if err := w.deps.Chat.NewConversation(ctx); err != nil {
		logger.Warn("starting new conversation", zap.Error(err))
	}

	for _, sc := range group {
		if w.deps.Limiter != nil {
			if err := w.deps.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		answer, err := w.deps.Chat.Ask(ctx, sc.Prompt)
		w.transition(StateAsked)

		switch {
		case err == nil:
			w.record(ctx, rec, sc, answer, false)
		case errors.Is(err, pages.ErrIncomplete):
			logger.Warn("response did not stabilize",
				zap.Int("row", sc.Row),
				zap.Duration("elapsed", answer.Elapsed))
			w.record(ctx, rec, sc, answer, true)
		default:
			w.recordFailure(ctx, rec, sc, err)
			return fmt.Errorf("asking row %d: %w", sc.Row, err)
		}
		w.transition(StateRecorded)
	}
	return nil
}

func (w *Worker) record(ctx context.Context, rec Recorder, sc scenario.Scenario, answer pages.Answer, incomplete bool) {
	shot, err := w.deps.Shot.Screenshot(ctx)
	if err != nil {
		w.logger.Warn("capturing evidence", zap.Int("row", sc.Row), zap.Error(err))
	}
	row := results.Row{
		ScenarioRow: sc.Row,
		Prompt:      sc.Prompt,
		Expected:    sc.Expected,
		Model:       sc.Model,
		Answer:      answer.Text,
		Passed:      !incomplete && passes(sc.Expected, answer.Text),
		Incomplete:  incomplete,
		Elapsed:     answer.Elapsed,
		Screenshot:  shot,
	}
	rec.Record(row)
	w.logger.Info("scenario recorded",
		zap.Int("row", sc.Row),
		zap.String("result", row.Result()),
		zap.Duration("elapsed", answer.Elapsed))
}

func (w *Worker) recordFailure(ctx context.Context, rec Recorder, sc scenario.Scenario, cause error) {
	shot, shotErr := w.deps.Shot.Screenshot(ctx)
	if shotErr != nil {
		w.logger.Warn("capturing failure screenshot", zap.Error(shotErr))
	}
	rec.Record(results.Row{
		ScenarioRow: sc.Row,
		Prompt:      sc.Prompt,
		Expected:    sc.Expected,
		Model:       sc.Model,
		Note:        fmt.Sprintf("aborted in state %s: %v", w.state, cause),
		Screenshot:  shot,
	})
}

func (w *Worker) flush(ctx context.Context, model string, rec Recorder) error {
	base := w.deps.OutputPath(w.deps.Account.Username, displayModel(model))

	switch w.deps.Format {
	case "json":
		if err := rec.FlushJSON(base + ".json"); err != nil {
			return err
		}
	case "both":
		if err := rec.Flush(base + ".xlsx"); err != nil {
			return err
		}
		if err := rec.FlushJSON(base + ".json"); err != nil {
			return err
		}
	default:
		if err := rec.Flush(base + ".xlsx"); err != nil {
			return err
		}
	}

	if w.deps.Store != nil {
		if err := w.deps.Store.SaveRun(ctx, w.deps.RunID, w.deps.Account.Username, rec.Rows()); err != nil {
			return fmt.Errorf("persisting results: %w", err)
		}
	}
	return nil
}

func (w *Worker) abort(ctx context.Context, cause error) error {
	w.transition(StateAborted)
	if shot, err := w.deps.Shot.Screenshot(ctx); err == nil && len(shot) > 0 {
		path := w.deps.OutputPath(w.deps.Account.Username, "aborted") + ".png"
		if err := writeFile(path, shot); err != nil {
			w.logger.Warn("writing abort screenshot", zap.Error(err))
		} else {
			w.logger.Info("abort screenshot written", zap.String("path", path))
		}
	}
	w.logger.Error("run aborted", zap.Error(cause))
	return cause
}

// passes applies the verdict rule. An empty expectation only requires a
// non-empty answer; otherwise the answer must contain the expected text,
// case-insensitively.
func passes(expected, answer string) bool {
	if expected == "" {
		return strings.TrimSpace(answer) != ""
	}
	return strings.Contains(strings.ToLower(answer), strings.ToLower(expected))
}

func displayModel(model string) string {
	if model == "" {
		return "default"
	}
	return model
}

// DefaultOutputPath builds per-account, per-model result paths under dir.
// The extension is appended by the caller.
func DefaultOutputPath(dir string) func(username, model string) string {
	return func(username, model string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s_%s",
			username, sanitize(model), time.Now().Format("20060102")))
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

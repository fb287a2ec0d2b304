package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/technica-vn/aiknow-probe/internal/accounts"
	"github.com/technica-vn/aiknow-probe/internal/browser"
	"github.com/technica-vn/aiknow-probe/internal/config"
	"github.com/technica-vn/aiknow-probe/internal/pages"
	"github.com/technica-vn/aiknow-probe/internal/results"
	"github.com/technica-vn/aiknow-probe/internal/scenario"
)

// Runner fans a scenario set out over one or more browser workers, each
// signed in as its own account.
type Runner struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *browser.Manager
	pool    *accounts.Pool
	store   *results.Store
	runID   string
}

func NewRunner(cfg *config.Config, manager *browser.Manager, store *results.Store, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		pool:    accounts.NewPool(cfg.Accounts),
		store:   store,
		runID:   uuid.New().String(),
	}
}

// RunID identifies this run in logs and the optional result store.
func (r *Runner) RunID() string { return r.runID }

// Run loads the scenarios and executes them. With a worker-id set, exactly
// one worker runs as the account mapped to that id; otherwise cfg.Run.Workers
// sessions run in parallel on consecutive pool accounts starting at
// cfg.Run.AccountIndex.
func (r *Runner) Run(ctx context.Context) error {
	scenarios, err := scenario.Load(r.cfg.Data.File, r.cfg.Data.Sheet)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}
	if r.cfg.Data.Sample > 0 {
		scenarios = scenarios.Sample(r.cfg.Data.Sample)
	}
	if len(r.cfg.Run.Models) > 0 {
		scenarios = filterModels(scenarios, r.cfg.Run.Models)
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios to run from %s", r.cfg.Data.File)
	}

	r.logger.Info("run starting",
		zap.String("run_id", r.runID),
		zap.Int("scenarios", len(scenarios)),
		zap.Strings("models", scenarios.Models()))

	if r.cfg.Run.WorkerID != "" {
		account, err := r.pool.ForWorkerID(r.cfg.Run.WorkerID)
		if err != nil {
			return err
		}
		return r.runWorker(ctx, account, scenarios)
	}

	workers := r.cfg.Run.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		account, err := r.pool.Get((r.cfg.Run.AccountIndex + i) % r.pool.Size())
		if err != nil {
			return err
		}
		g.Go(func() error {
			return r.runWorker(gctx, account, scenarios)
		})
	}
	return g.Wait()
}

func (r *Runner) runWorker(ctx context.Context, account accounts.Account, scenarios scenario.Scenarios) error {
	session, err := r.manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("starting browser session for %s: %w", account.Username, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			r.logger.Warn("closing session", zap.Error(err))
		}
	}()

	// Each worker walks the scenarios in its own order when shuffling is on,
	// so parallel workers do not hammer the same prompt at the same moment.
	if r.cfg.Data.Shuffle {
		scenarios = scenarios.Shuffled()
	}

	var limiter *rate.Limiter
	if d := r.cfg.Chat.PromptDelay; d > 0 {
		limiter = rate.NewLimiter(rate.Every(d), 1)
	}

	logger := r.logger.Named("worker")
	worker := NewWorker(Deps{
		Logger:  logger,
		Account: account,
		Open: func(ctx context.Context) error {
			return session.Navigate(ctx, r.cfg.App.LoginURL())
		},
		Auth: pages.NewLoginPage(session, logger),
		Nav:  pages.NewHomePage(session, logger),
		Chat: pages.NewChatPage(session, r.cfg.Chat, logger),
		Shot: session,
		NewRecorder: func() Recorder {
			return results.NewExporter(logger)
		},
		OutputPath: DefaultOutputPath(r.cfg.Results.Dir),
		Format:     r.cfg.Results.Format,
		Limiter:    limiter,
		Store:      r.store,
		RunID:      r.runID,
	})
	return worker.Run(ctx, scenarios)
}

func filterModels(scenarios scenario.Scenarios, models []string) scenario.Scenarios {
	keep := make(map[string]bool, len(models))
	for _, m := range models {
		keep[m] = true
	}
	out := make(scenario.Scenarios, 0, len(scenarios))
	for _, sc := range scenarios {
		if keep[sc.Model] {
			out = append(out, sc)
		}
	}
	return out
}

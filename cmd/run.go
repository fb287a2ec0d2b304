package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/browser"
	"github.com/technica-vn/aiknow-probe/internal/config"
	"github.com/technica-vn/aiknow-probe/internal/harness"
	"github.com/technica-vn/aiknow-probe/internal/observability"
	"github.com/technica-vn/aiknow-probe/internal/results"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		workers      int
		accountIndex int
		workerID     string
		models       []string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the chat scenarios against the application",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config file and env.
			for flag, key := range map[string]string{
				"data":     "data.file",
				"sheet":    "data.sheet",
				"shuffle":  "data.shuffle",
				"sample":   "data.sample",
				"out":      "results.dir",
				"format":   "results.format",
				"headless": "browser.headless",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg.Run = config.RunConfig{
				Workers:      workers,
				AccountIndex: accountIndex,
				WorkerID:     workerID,
				Models:       models,
			}
			if cfg.Accounts.Password == "" {
				return fmt.Errorf("account password is not set (AIKNOW_ACCOUNT_PASSWORD)")
			}

			manager := browser.NewManager(ctx, cfg.Browser, logger.Named("browser"))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown incomplete", zap.Error(err))
				}
			}()

			var store *results.Store
			if cfg.Database.URL != "" {
				pool, err := pgxpool.New(ctx, cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connecting to result store: %w", err)
				}
				defer pool.Close()

				store, err = results.NewStore(ctx, pool, logger.Named("store"))
				if err != nil {
					return fmt.Errorf("initializing result store: %w", err)
				}
			}

			runner := harness.NewRunner(cfg, manager, store, logger.Named("harness"))
			if err := runner.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by signal", zap.String("run_id", runner.RunID()))
					return err
				}
				return err
			}

			fmt.Printf("\nRun complete. Run ID: %s\nResults written to %s\n", runner.RunID(), cfg.Results.Dir)
			return nil
		},
	}

	runCmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of parallel browser sessions")
	runCmd.Flags().IntVar(&accountIndex, "account-index", 0, "index of the first pool account to use")
	runCmd.Flags().StringVar(&workerID, "worker-id", "", "external runner worker id (master, gw0, gw1, ...)")
	runCmd.Flags().StringSliceVarP(&models, "models", "m", nil, "restrict the run to these models")
	runCmd.Flags().StringP("data", "d", "", "scenario spreadsheet path")
	runCmd.Flags().String("sheet", "", "scenario sheet name (default is the first sheet)")
	runCmd.Flags().Bool("shuffle", false, "shuffle scenario order per worker")
	runCmd.Flags().Int("sample", 0, "run only the first N scenarios")
	runCmd.Flags().StringP("out", "o", "", "results output directory")
	runCmd.Flags().StringP("format", "f", "", "results format: xlsx, json or both")
	runCmd.Flags().Bool("headless", true, "run the browser headless")

	return runCmd
}

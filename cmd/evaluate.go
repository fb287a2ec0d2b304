package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/config"
	"github.com/technica-vn/aiknow-probe/internal/observability"
	"github.com/technica-vn/aiknow-probe/internal/quality"
	"github.com/technica-vn/aiknow-probe/internal/results"
)

// newEvaluateCmd creates the `evaluate` command, which scores a previously
// exported result file with the LLM judge.
func newEvaluateCmd() *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate [result-file.xlsx]",
		Short: "Scores the answers in a result file with an LLM judge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Evaluator.APIKey == "" {
				return fmt.Errorf("evaluator API key is not set (GEMINI_API_KEY)")
			}

			rows, err := results.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading results: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no result rows in %s", args[0])
			}

			evaluator, err := quality.NewEvaluator(ctx, cfg.Evaluator, logger.Named("quality"))
			if err != nil {
				return err
			}

			var total float64
			scored := 0
			for _, row := range rows {
				if row.Answer == "" {
					continue
				}
				score, err := evaluator.Evaluate(ctx, row.Prompt, row.Expected, row.Answer)
				if err != nil {
					logger.Warn("Scoring failed", zap.Int("row", row.ScenarioRow), zap.Error(err))
					continue
				}
				total += score.Overall
				scored++
				fmt.Printf("row %d: overall %.1f  (relevance %.1f, accuracy %.1f, completeness %.1f, coherence %.1f, similarity %.1f)\n  %s\n",
					row.ScenarioRow, score.Overall, score.Relevance, score.Accuracy,
					score.Completeness, score.Coherence, score.Similarity, score.Feedback)
			}

			if scored == 0 {
				return fmt.Errorf("no rows could be scored")
			}
			fmt.Printf("\nScored %d of %d rows. Mean overall: %.2f\n", scored, len(rows), total/float64(scored))
			return nil
		},
	}
	return evaluateCmd
}

package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const sqlCreateResults = `
	CREATE TABLE IF NOT EXISTS chat_results (
		id         UUID PRIMARY KEY,
		run_id     UUID NOT NULL,
		username   TEXT NOT NULL,
		model      TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		expected   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		passed     BOOLEAN NOT NULL,
		incomplete BOOLEAN NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
`

const sqlInsertResult = `
	INSERT INTO chat_results
		(id, run_id, username, model, prompt, expected, answer, passed, incomplete, elapsed_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`

// Store persists result rows to Postgres. Optional: the harness exports to
// spreadsheets regardless, the store only adds queryability across runs.
type Store struct {
	db     DB
	logger *zap.Logger
}

// NewStore pings the database and ensures the results table exists.
func NewStore(ctx context.Context, db DB, logger *zap.Logger) (*Store, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping results database: %w", err)
	}
	if _, err := db.Exec(ctx, sqlCreateResults); err != nil {
		return nil, fmt.Errorf("failed to ensure results schema: %w", err)
	}
	return &Store{db: db, logger: logger.Named("result_store")}, nil
}

// SaveRun inserts one row per result for the given run and account.
func (s *Store) SaveRun(ctx context.Context, runID, username string, rows []Row) error {
	now := time.Now().UTC()
	for _, row := range rows {
		_, err := s.db.Exec(ctx, sqlInsertResult,
			uuid.New().String(), runID, username, row.Model,
			row.Prompt, row.Expected, row.Answer,
			row.Passed, row.Incomplete, row.Elapsed.Milliseconds(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result row %d: %w", row.ScenarioRow, err)
		}
	}
	s.logger.Info("Run persisted.",
		zap.String("run_id", runID), zap.String("username", username), zap.Int("rows", len(rows)))
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrations := []string{
		createOutcomeType,
		createActiveContextsTable,
		createRebuildHistoryTable,
	}

	for i, migration := range migrations {
		logger.Debug("running migration", zap.Int("step", i+1), zap.Int("total", len(migrations)))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("all migrations completed successfully", zap.Int("count", len(migrations)))
	return nil
}

const createOutcomeType = `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'rebuild_outcome_t') THEN
    CREATE TYPE rebuild_outcome_t AS ENUM ('ready', 'error', 'stale');
  END IF;
END$$;
`

const createActiveContextsTable = `
CREATE TABLE IF NOT EXISTS active_contexts (
  id TEXT PRIMARY KEY,
  database_name TEXT NOT NULL,
  schema_name TEXT NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const createRebuildHistoryTable = `
CREATE TABLE IF NOT EXISTS rebuild_history (
  id UUID PRIMARY KEY,
  generation BIGINT NOT NULL,
  database_name TEXT NOT NULL,
  schema_name TEXT NOT NULL,
  outcome rebuild_outcome_t NOT NULL,
  table_count INTEGER NOT NULL DEFAULT 0,
  edge_count INTEGER NOT NULL DEFAULT 0,
  degraded_tables INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  duration_ms BIGINT NOT NULL,
  started_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rebuild_history_started_at ON rebuild_history(started_at DESC);
`

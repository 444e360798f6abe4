package repositories

import (
	"context"

	"schemagraph/internal/models"
)

type RebuildHistoryRepository struct {
	pool Querier
}

func NewRebuildHistoryRepository(pool Querier) *RebuildHistoryRepository {
	return &RebuildHistoryRepository{pool: pool}
}

func (r *RebuildHistoryRepository) Create(ctx context.Context, record *models.RebuildRecord) error {
	record.Prepare()

	query := `
		INSERT INTO rebuild_history (id, generation, database_name, schema_name, outcome,
			table_count, edge_count, degraded_tables, error_message, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, $5::text::rebuild_outcome_t, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		int64(record.Generation),
		record.DatabaseName,
		record.SchemaName,
		record.Outcome,
		record.TableCount,
		record.EdgeCount,
		record.DegradedTables,
		record.ErrorMessage,
		record.DurationMs,
		record.StartedAt,
	)

	return err
}

// List returns the most recent records first.
func (r *RebuildHistoryRepository) List(ctx context.Context, limit int) ([]models.RebuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, generation, database_name, schema_name, outcome::text,
			table_count, edge_count, degraded_tables, error_message, duration_ms, started_at
		FROM rebuild_history
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.RebuildRecord, 0)
	for rows.Next() {
		var rec models.RebuildRecord
		var generation int64
		err := rows.Scan(
			&rec.ID,
			&generation,
			&rec.DatabaseName,
			&rec.SchemaName,
			&rec.Outcome,
			&rec.TableCount,
			&rec.EdgeCount,
			&rec.DegradedTables,
			&rec.ErrorMessage,
			&rec.DurationMs,
			&rec.StartedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.Generation = uint64(generation)
		records = append(records, rec)
	}

	return records, rows.Err()
}

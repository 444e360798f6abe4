package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"schemagraph/internal/models"
)

// Querier is the subset of *pgxpool.Pool the repositories use.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SchemaRepository reads table metadata from a Postgres database through
// information_schema and pg_catalog.
type SchemaRepository struct {
	pool Querier
}

func NewSchemaRepository(pool Querier) *SchemaRepository {
	return &SchemaRepository{pool: pool}
}

// ListSchemas returns every user schema with its table count.
func (r *SchemaRepository) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	query := `
		SELECT table_schema, COUNT(table_name)
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		GROUP BY table_schema
		ORDER BY table_schema
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	schemas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SchemaSummary, error) {
		var s models.SchemaSummary
		err := row.Scan(&s.Name, &s.TableCount)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan schemas: %w", err)
	}
	return schemas, nil
}

// ListTables returns the base tables of schema ordered by name, with the
// planner's row estimate.
func (r *SchemaRepository) ListTables(ctx context.Context, schema string) ([]models.TableSummary, error) {
	query := `
		SELECT
			t.table_name,
			GREATEST(COALESCE(c.reltuples, 0), 0)::bigint AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_schema = $1
			AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name
	`

	rows, err := r.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %q: %w", schema, err)
	}

	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TableSummary, error) {
		var t models.TableSummary
		err := row.Scan(&t.Name, &t.RowCountEstimate)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tables in %q: %w", schema, err)
	}
	return tables, nil
}

// GetTableStructure returns the columns, constraints and foreign keys of a
// single table.
func (r *SchemaRepository) GetTableStructure(ctx context.Context, schema, table string) (*models.TableStructure, error) {
	columns, err := r.GetColumns(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for %s: %w", table, err)
	}

	constraints, err := r.GetConstraints(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get constraints for %s: %w", table, err)
	}

	fks, err := r.GetForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys for %s: %w", table, err)
	}

	return &models.TableStructure{
		Columns:     columns,
		Constraints: constraints,
		ForeignKeys: fks,
	}, nil
}

// GetColumns returns all columns for a specific table in a schema
func (r *SchemaRepository) GetColumns(ctx context.Context, schema, table string) ([]models.ColumnMetadata, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make([]models.ColumnMetadata, 0)
	for rows.Next() {
		var col models.ColumnMetadata
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.DefaultExpression); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return columns, nil
}

// GetConstraints returns one row per (constraint, column). CHECK constraints
// without a key column come back with an empty ColumnName.
func (r *SchemaRepository) GetConstraints(ctx context.Context, schema, table string) ([]models.Constraint, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			COALESCE(kcu.column_name, '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY tc.constraint_type, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	constraints := make([]models.Constraint, 0)
	for rows.Next() {
		var c models.Constraint
		if err := rows.Scan(&c.Name, &c.Type, &c.ColumnName); err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return constraints, nil
}

// GetForeignKeys returns one row per column pair of every foreign key on the
// table. Composite keys are paired by key position, and keys into other
// schemas are kept with a qualified target.
func (r *SchemaRepository) GetForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	query := `
		SELECT
			con.conname,
			src.attname,
			tns.nspname,
			tcl.relname,
			dst.attname
		FROM pg_constraint AS con
		JOIN pg_class AS cl ON cl.oid = con.conrelid
		JOIN pg_namespace AS ns ON ns.oid = cl.relnamespace
		JOIN pg_class AS tcl ON tcl.oid = con.confrelid
		JOIN pg_namespace AS tns ON tns.oid = tcl.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src_attnum, dst_attnum, ord)
		JOIN pg_attribute AS src ON src.attrelid = con.conrelid AND src.attnum = k.src_attnum
		JOIN pg_attribute AS dst ON dst.attrelid = con.confrelid AND dst.attnum = k.dst_attnum
		WHERE con.contype = 'f'
			AND ns.nspname = $1
			AND cl.relname = $2
		ORDER BY con.conname, k.ord
	`

	rows, err := r.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make([]models.ForeignKey, 0)
	for rows.Next() {
		var fk models.ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceColumn, &fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, err
		}
		qualifyTarget(&fk, schema)
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fks, nil
}

// qualifyTarget prefixes the target table with its schema when it differs
// from the source schema, so it never matches a same-named local table.
func qualifyTarget(fk *models.ForeignKey, schema string) {
	if fk.TargetSchema != "" && fk.TargetSchema != schema {
		fk.TargetTable = fk.TargetSchema + "." + fk.TargetTable
	}
}

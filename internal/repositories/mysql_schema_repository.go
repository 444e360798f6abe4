package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"schemagraph/internal/models"
)

// MySQLSchemaRepository reads table metadata from a MySQL server. In MySQL a
// schema and a database are the same thing, so the schema argument selects
// the information_schema rows directly.
type MySQLSchemaRepository struct {
	db *sql.DB
}

func NewMySQLSchemaRepository(db *sql.DB) *MySQLSchemaRepository {
	return &MySQLSchemaRepository{db: db}
}

func (r *MySQLSchemaRepository) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	query := `
		SELECT table_schema, COUNT(table_name)
		FROM information_schema.tables
		WHERE table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		GROUP BY table_schema
		ORDER BY table_schema
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	schemas := make([]models.SchemaSummary, 0)
	for rows.Next() {
		var s models.SchemaSummary
		if err := rows.Scan(&s.Name, &s.TableCount); err != nil {
			return nil, fmt.Errorf("failed to scan schemas: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

// ListTables uses table_rows, which InnoDB only estimates.
func (r *MySQLSchemaRepository) ListTables(ctx context.Context, schema string) ([]models.TableSummary, error) {
	query := `
		SELECT table_name, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := r.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %q: %w", schema, err)
	}
	defer rows.Close()

	tables := make([]models.TableSummary, 0)
	for rows.Next() {
		var t models.TableSummary
		if err := rows.Scan(&t.Name, &t.RowCountEstimate); err != nil {
			return nil, fmt.Errorf("failed to scan tables in %q: %w", schema, err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *MySQLSchemaRepository) GetTableStructure(ctx context.Context, schema, table string) (*models.TableStructure, error) {
	columns, err := r.getColumns(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for %s: %w", table, err)
	}

	constraints, err := r.getConstraints(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get constraints for %s: %w", table, err)
	}

	fks, err := r.getForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys for %s: %w", table, err)
	}

	return &models.TableStructure{
		Columns:     columns,
		Constraints: constraints,
		ForeignKeys: fks,
	}, nil
}

func (r *MySQLSchemaRepository) getColumns(ctx context.Context, schema, table string) ([]models.ColumnMetadata, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := r.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make([]models.ColumnMetadata, 0)
	for rows.Next() {
		var col models.ColumnMetadata
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &def); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.DefaultExpression = &def.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (r *MySQLSchemaRepository) getConstraints(ctx context.Context, schema, table string) ([]models.Constraint, error) {
	query := `
		SELECT tc.constraint_name, tc.constraint_type, COALESCE(kcu.column_name, '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = ? AND tc.table_name = ?
		ORDER BY tc.constraint_type, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := r.db.QueryContext(ctx, query, schema, table)
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
	return constraints, rows.Err()
}

func (r *MySQLSchemaRepository) getForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	query := `
		SELECT constraint_name, column_name, referenced_table_schema, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ?
			AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position
	`

	rows, err := r.db.QueryContext(ctx, query, schema, table)
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
	return fks, rows.Err()
}

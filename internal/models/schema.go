package models

const (
	ConstraintPrimaryKey = "PRIMARY KEY"
	ConstraintForeignKey = "FOREIGN KEY"
	ConstraintUnique     = "UNIQUE"
)

type SchemaSummary struct {
	Name       string `json:"schema_name"`
	TableCount int64  `json:"table_count"`
}

// TableSummary is one entry of a "list tables" response.
type TableSummary struct {
	Name             string `json:"table_name"`
	RowCountEstimate int64  `json:"row_count"`
}

type ColumnMetadata struct {
	Name              string  `json:"column_name"`
	DataType          string  `json:"data_type"`
	Nullable          bool    `json:"nullable"`
	DefaultExpression *string `json:"column_default,omitempty"`
	IsPrimaryKey      bool    `json:"is_primary_key"`
}

type Constraint struct {
	Name       string `json:"constraint_name"`
	Type       string `json:"constraint_type"`
	ColumnName string `json:"column_name"`
}

// ForeignKey is one column pair of a foreign key constraint; a composite key
// yields one entry per column, in key order. TargetTable is qualified with
// TargetSchema when the referenced table lives in another schema.
type ForeignKey struct {
	ConstraintName string `json:"constraint_name"`
	SourceColumn   string `json:"column_name"`
	TargetSchema   string `json:"referenced_schema"`
	TargetTable    string `json:"referenced_table"`
	TargetColumn   string `json:"referenced_column"`
}

// TableStructure is what a provider returns for a single table. Columns
// never carry the primary key flag; it is derived from Constraints.
type TableStructure struct {
	Columns     []ColumnMetadata `json:"columns"`
	Constraints []Constraint     `json:"constraints"`
	ForeignKeys []ForeignKey     `json:"foreign_keys"`
}

type TableMetadata struct {
	Name             string           `json:"table_name"`
	RowCountEstimate int64            `json:"row_count"`
	Columns          []ColumnMetadata `json:"columns"`
	Constraints      []Constraint     `json:"constraints"`
	ForeignKeys      []ForeignKey     `json:"foreign_keys"`
}

// HasConstraint reports whether a constraint of the given type references column.
func (t *TableMetadata) HasConstraint(constraintType, column string) bool {
	for _, c := range t.Constraints {
		if c.Type == constraintType && c.ColumnName == column {
			return true
		}
	}
	return false
}

// PrimaryKeys returns the primary key column names in column order.
func (t *TableMetadata) PrimaryKeys() []string {
	var pks []string
	for _, col := range t.Columns {
		if t.HasConstraint(ConstraintPrimaryKey, col.Name) {
			pks = append(pks, col.Name)
		}
	}
	return pks
}

// SchemaRef identifies the schema an aggregation cycle targets.
type SchemaRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
}

func (r SchemaRef) String() string {
	if r.Database == "" {
		return r.Schema
	}
	return r.Database + "." + r.Schema
}

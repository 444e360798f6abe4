package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemagraph/internal/models"
)

func TestMermaidOneToMany(t *testing.T) {
	out := Mermaid(Assemble(shopTables(t)))

	assert.True(t, strings.HasPrefix(out, "erDiagram\n"))
	assert.Contains(t, out, `    USERS ||--o{ ORDERS : ""`)
	assert.Contains(t, out, "    USERS {\n        int id PK\n        varchar email\n")
	assert.Contains(t, out, "        timestamptz created_at\n")
	assert.Contains(t, out, "        int user_id FK\n")
}

func TestMermaidOneToOne(t *testing.T) {
	tables := []models.TableMetadata{
		{Name: "users", Columns: []models.ColumnMetadata{column("id", "integer", false)}},
		{
			Name:    "profiles",
			Columns: []models.ColumnMetadata{column("id", "integer", false), column("user_id", "integer", false)},
			Constraints: []models.Constraint{
				{Type: models.ConstraintPrimaryKey, ColumnName: "id"},
				{Type: models.ConstraintUnique, ColumnName: "user_id"},
			},
			ForeignKeys: []models.ForeignKey{{SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"}},
		},
	}

	out := Mermaid(Assemble(tables))
	assert.Contains(t, out, `USERS ||--|| PROFILES : ""`)
	assert.NotContains(t, out, "||--o{")
}

func TestMermaidManyToManyThroughJunction(t *testing.T) {
	pk := func(cols ...string) []models.Constraint {
		out := make([]models.Constraint, len(cols))
		for i, c := range cols {
			out[i] = models.Constraint{Type: models.ConstraintPrimaryKey, ColumnName: c}
		}
		return out
	}
	tables := []models.TableMetadata{
		{Name: "students", Columns: []models.ColumnMetadata{column("id", "uuid", false)}, Constraints: pk("id")},
		{Name: "courses", Columns: []models.ColumnMetadata{column("id", "uuid", false)}, Constraints: pk("id")},
		{
			Name: "enrollments",
			Columns: []models.ColumnMetadata{
				column("student_id", "uuid", false),
				column("course_id", "uuid", false),
				column("enrolled_on", "date", false),
			},
			Constraints: pk("student_id", "course_id"),
			ForeignKeys: []models.ForeignKey{
				{SourceColumn: "student_id", TargetTable: "students", TargetColumn: "id"},
				{SourceColumn: "course_id", TargetTable: "courses", TargetColumn: "id"},
			},
		},
	}

	out := Mermaid(Assemble(tables))
	assert.Contains(t, out, `STUDENTS }o--o{ COURSES : ""`)
	assert.NotContains(t, out, "||--o{", "junction edges are folded into the many-to-many line")
	assert.Contains(t, out, "uuid student_id PK FK")
}

func TestMermaidOmitsUnresolvedAndDuplicates(t *testing.T) {
	tables := []models.TableMetadata{
		{Name: "users"},
		{
			Name: "audit",
			ForeignKeys: []models.ForeignKey{
				{SourceColumn: "created_by", TargetTable: "users"},
				{SourceColumn: "updated_by", TargetTable: "users"},
				{SourceColumn: "tenant_id", TargetTable: "tenants"},
			},
		},
	}

	out := Mermaid(Assemble(tables))
	assert.Equal(t, 1, strings.Count(out, "USERS ||--o{ AUDIT"))
	assert.NotContains(t, out, "TENANTS")
}

func TestMermaidEmpty(t *testing.T) {
	assert.Equal(t, "erDiagram\n", Mermaid(nil))
}

func TestSimplifyDataType(t *testing.T) {
	cases := map[string]string{
		"integer":                     "int",
		"character varying":           "varchar",
		"character":                   "char",
		"timestamp without time zone": "timestamp",
		"time with time zone":         "timetz",
		"double precision":            "double",
		"ARRAY":                       "array",
		"varchar":                     "varchar",
		"USER-DEFINED":                "USER-DEFINED",
		"bit varying":                 "bit_varying",
	}
	for in, want := range cases {
		assert.Equal(t, want, simplifyDataType(in), in)
	}
}

func TestSchemaServiceBrowsing(t *testing.T) {
	svc := NewSchemaService(StaticResolver(shopProvider()), newStaticSource("shop", "public"))
	ctx := context.Background()

	schemas, err := svc.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SchemaSummary{{Name: "public", TableCount: 2}}, schemas)

	tables, err := svc.ListTables(ctx, "public")
	require.NoError(t, err)
	assert.Len(t, tables, 2)

	users, err := svc.GetTable(ctx, "public", "users")
	require.NoError(t, err)
	assert.Equal(t, "users", users.Name)
	assert.True(t, users.Columns[0].IsPrimaryKey)
	assert.False(t, users.Columns[1].IsPrimaryKey)

	_, err = svc.GetTable(ctx, "public", "missing")
	assert.Error(t, err)
}

type listOnlyProvider struct{ MetadataProvider }

func TestSchemaServiceListingUnsupported(t *testing.T) {
	svc := NewSchemaService(StaticResolver(listOnlyProvider{shopProvider()}), newStaticSource("shop", "public"))
	_, err := svc.ListSchemas(context.Background())
	assert.ErrorIs(t, err, ErrSchemaListingUnsupported)
}

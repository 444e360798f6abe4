package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schemagraph/internal/models"
	"schemagraph/internal/utils"
)

const (
	maxJunctionTableColumns = 6
	minJunctionTableFKs     = 2
)

const (
	relOneToOne   = "||--||"
	relOneToMany  = "||--o{"
	relManyToMany = "}o--o{"
)

var ErrSchemaListingUnsupported = errors.New("provider cannot list schemas")

// SchemaService answers metadata browsing requests against the active
// database and renders graph models as Mermaid ER diagrams.
type SchemaService struct {
	resolve ResolverFunc
	source  ContextSource
}

func NewSchemaService(resolve ResolverFunc, source ContextSource) *SchemaService {
	return &SchemaService{resolve: resolve, source: source}
}

func (s *SchemaService) provider(ctx context.Context) (MetadataProvider, error) {
	return s.resolve(ctx, s.source.Current().Database)
}

func (s *SchemaService) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	lister, ok := p.(SchemaLister)
	if !ok {
		return nil, ErrSchemaListingUnsupported
	}
	return lister.ListSchemas(ctx)
}

func (s *SchemaService) ListTables(ctx context.Context, schema string) ([]models.TableSummary, error) {
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	return p.ListTables(ctx, schema)
}

// GetTable returns a table's structure with the primary key flag derived.
func (s *SchemaService) GetTable(ctx context.Context, schema, table string) (*models.TableMetadata, error) {
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	structure, err := p.GetTableStructure(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	meta := nodePayload(models.TableMetadata{
		Name:        table,
		Columns:     structure.Columns,
		Constraints: structure.Constraints,
		ForeignKeys: structure.ForeignKeys,
	})
	return &meta, nil
}

type relationship struct {
	From string
	To   string
	Type string
}

// Mermaid renders model as an erDiagram. Junction tables add a many-to-many
// relationship between the tables they link. Unresolved edges are left out
// since Mermaid cannot draw a relationship to an undeclared entity.
func Mermaid(model *models.GraphModel) string {
	if model == nil {
		model = models.NewGraphModel()
	}
	tables := make([]models.TableMetadata, len(model.Nodes))
	for i, n := range model.Nodes {
		tables[i] = n.Payload
	}
	return generateMermaid(tables, buildRelationships(model, tables))
}

func buildRelationships(model *models.GraphModel, tables []models.TableMetadata) []relationship {
	junctionTables := detectJunctionTables(tables)
	byName := make(map[string]*models.TableMetadata, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	var relationships []relationship
	for _, table := range tables {
		if !junctionTables[table.Name] {
			continue
		}
		var targets []string
		for _, e := range model.Edges {
			if e.Source == table.Name && e.Resolved {
				targets = append(targets, e.Target)
			}
		}
		for i := 0; i < len(targets); i++ {
			for j := i + 1; j < len(targets); j++ {
				relationships = append(relationships, relationship{
					From: targets[i],
					To:   targets[j],
					Type: relManyToMany,
				})
			}
		}
	}

	for _, e := range model.Edges {
		if !e.Resolved || junctionTables[e.Source] {
			continue
		}
		relType := relOneToMany
		if src, ok := byName[e.Source]; ok && src.HasConstraint(models.ConstraintUnique, e.Label) {
			relType = relOneToOne
		}
		// the referenced table is the "one" side
		relationships = append(relationships, relationship{
			From: e.Target,
			To:   e.Source,
			Type: relType,
		})
	}
	return relationships
}

// detectJunctionTables finds tables with at least two foreign keys, all of
// them part of the primary key, and few other columns.
func detectJunctionTables(tables []models.TableMetadata) map[string]bool {
	junctionTables := make(map[string]bool)
	for _, table := range tables {
		pks := table.PrimaryKeys()
		if len(table.ForeignKeys) < minJunctionTableFKs ||
			len(pks) < minJunctionTableFKs ||
			len(table.Columns) > maxJunctionTableColumns {
			continue
		}

		fkColumns := make([]string, 0, len(table.ForeignKeys))
		for _, fk := range table.ForeignKeys {
			fkColumns = append(fkColumns, fk.SourceColumn)
		}
		if utils.CountShared(pks, fkColumns) == len(fkColumns) &&
			utils.CountShared(fkColumns, pks) >= minJunctionTableFKs {
			junctionTables[table.Name] = true
		}
	}
	return junctionTables
}

func generateMermaid(tables []models.TableMetadata, relationships []relationship) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	if len(relationships) > 0 {
		seen := make(map[string]bool)
		for _, rel := range relationships {
			key := fmt.Sprintf("%s:%s:%s", rel.From, rel.Type, rel.To)
			if seen[key] {
				continue
			}
			seen[key] = true

			// Mermaid requires a label; an empty one hides it
			fmt.Fprintf(&sb, "    %s %s %s : \"\"\n",
				strings.ToUpper(rel.From),
				rel.Type,
				strings.ToUpper(rel.To))
		}
		sb.WriteString("\n")
	}

	for _, table := range tables {
		fmt.Fprintf(&sb, "    %s {\n", strings.ToUpper(table.Name))

		pks := table.PrimaryKeys()
		for _, col := range table.Columns {
			annotations := ""
			if utils.Contains(pks, col.Name) {
				annotations = " PK"
			}
			if isForeignKey(table.ForeignKeys, col.Name) {
				annotations += " FK"
			}

			fmt.Fprintf(&sb, "        %s %s%s\n",
				simplifyDataType(col.DataType),
				col.Name,
				annotations)
		}

		sb.WriteString("    }\n\n")
	}

	return sb.String()
}

func simplifyDataType(dataType string) string {
	dt := strings.ToLower(dataType)

	switch {
	case dt == "integer", dt == "int":
		return "int"
	case dt == "bigint":
		return "bigint"
	case dt == "smallint":
		return "smallint"
	case strings.HasPrefix(dt, "character varying"):
		return "varchar"
	case strings.HasPrefix(dt, "character"):
		return "char"
	case dt == "text":
		return "text"
	case strings.HasPrefix(dt, "timestamp without time zone"):
		return "timestamp"
	case strings.HasPrefix(dt, "timestamp with time zone"):
		return "timestamptz"
	case strings.HasPrefix(dt, "time without time zone"):
		return "time"
	case strings.HasPrefix(dt, "time with time zone"):
		return "timetz"
	case dt == "date":
		return "date"
	case dt == "boolean":
		return "boolean"
	case strings.HasPrefix(dt, "numeric"):
		return "numeric"
	case strings.HasPrefix(dt, "decimal"):
		return "decimal"
	case dt == "real":
		return "real"
	case dt == "double precision":
		return "double"
	case dt == "json":
		return "json"
	case dt == "jsonb":
		return "jsonb"
	case dt == "uuid":
		return "uuid"
	case dt == "bytea":
		return "bytea"
	case strings.HasPrefix(dt, "array"):
		return "array"
	default:
		// attribute types must be a single word
		return strings.ReplaceAll(dataType, " ", "_")
	}
}

func isForeignKey(fks []models.ForeignKey, colName string) bool {
	for _, fk := range fks {
		if fk.SourceColumn == colName {
			return true
		}
	}
	return false
}

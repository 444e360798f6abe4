package services

import (
	"fmt"

	"schemagraph/internal/models"
)

// Assemble turns aggregated table metadata into a graph model: one node per
// table in input order, one edge per foreign key. Edges whose target is not
// a node are kept and marked unresolved. Positions are left at the origin;
// the layout package fills them in.
func Assemble(tables []models.TableMetadata) *models.GraphModel {
	graph := models.NewGraphModel()

	nodeIDs := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		nodeIDs[table.Name] = struct{}{}
	}

	ordinals := make(map[[2]string]int)
	for _, table := range tables {
		graph.Nodes = append(graph.Nodes, models.GraphNode{
			ID:      table.Name,
			Payload: nodePayload(table),
		})

		for _, fk := range table.ForeignKeys {
			pair := [2]string{table.Name, fk.TargetTable}
			ordinal := ordinals[pair]
			ordinals[pair]++

			_, resolved := nodeIDs[fk.TargetTable]
			graph.Edges = append(graph.Edges, models.GraphEdge{
				ID:             fmt.Sprintf("%s-%s-%d", table.Name, fk.TargetTable, ordinal),
				Source:         table.Name,
				Target:         fk.TargetTable,
				Label:          fk.SourceColumn,
				TargetColumn:   fk.TargetColumn,
				ConstraintName: fk.ConstraintName,
				Resolved:       resolved,
			})
		}
	}

	return graph
}

// nodePayload copies the table so the model never aliases the aggregation
// result, and derives the primary key flag from the constraints.
func nodePayload(table models.TableMetadata) models.TableMetadata {
	payload := models.TableMetadata{
		Name:             table.Name,
		RowCountEstimate: table.RowCountEstimate,
		Columns:          make([]models.ColumnMetadata, len(table.Columns)),
		Constraints:      append(make([]models.Constraint, 0, len(table.Constraints)), table.Constraints...),
		ForeignKeys:      append(make([]models.ForeignKey, 0, len(table.ForeignKeys)), table.ForeignKeys...),
	}
	for i, col := range table.Columns {
		col.IsPrimaryKey = table.HasConstraint(models.ConstraintPrimaryKey, col.Name)
		payload.Columns[i] = col
	}
	return payload
}

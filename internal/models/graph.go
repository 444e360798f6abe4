package models

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphNode is one table. ID is the table name and is unique within a model.
type GraphNode struct {
	ID       string        `json:"id"`
	Position Point         `json:"position"`
	Payload  TableMetadata `json:"data"`
}

// GraphEdge is one foreign key. Resolved is false when Target is not a node
// of the same model (e.g. a cross-schema reference).
type GraphEdge struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Target         string `json:"target"`
	Label          string `json:"label"`
	TargetColumn   string `json:"target_column"`
	ConstraintName string `json:"constraint_name"`
	Resolved       bool   `json:"resolved"`
}

type GraphModel struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type GraphStats struct {
	Tables        int `json:"tables"`
	Relationships int `json:"relationships"`
	Unresolved    int `json:"unresolved"`
}

func NewGraphModel() *GraphModel {
	return &GraphModel{
		Nodes: make([]GraphNode, 0),
		Edges: make([]GraphEdge, 0),
	}
}

func (g *GraphModel) Node(id string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

func (g *GraphModel) Stats() GraphStats {
	stats := GraphStats{Tables: len(g.Nodes), Relationships: len(g.Edges)}
	for _, e := range g.Edges {
		if !e.Resolved {
			stats.Unresolved++
		}
	}
	return stats
}

// WithPositions returns a copy of the model whose nodes carry the given
// positions. Nodes and edges are shared by value, never mutated.
func (g *GraphModel) WithPositions(positions []Point) *GraphModel {
	out := &GraphModel{
		Nodes: make([]GraphNode, len(g.Nodes)),
		Edges: make([]GraphEdge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	for i := range out.Nodes {
		if i < len(positions) {
			out.Nodes[i].Position = positions[i]
		}
	}
	return out
}

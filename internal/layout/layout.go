// Package layout assigns 2-D positions to graph nodes. Every function here is
// pure: the same arguments always produce the same coordinates.
package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"schemagraph/internal/models"
)

// Kind selects a layout strategy. The set is closed.
type Kind int

const (
	Grid Kind = iota
	Circular
	Hierarchical
)

var ErrLayoutInvariant = errors.New("layout: index must be within [0, total) and total must be positive")

var kindNames = [...]string{
	Grid:         "grid",
	Circular:     "circular",
	Hierarchical: "hierarchical",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) Valid() bool {
	return k >= Grid && k <= Hierarchical
}

func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return Grid, fmt.Errorf("unknown layout %q (expected grid, circular or hierarchical)", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid layout kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Dimensions describe the node box. Grid and Hierarchical place nodes
// NodeWidth+Padding apart horizontally and NodeHeight+Padding vertically.
type Dimensions struct {
	NodeWidth  float64
	NodeHeight float64
	Padding    float64
	// FanOut is the number of nodes per level in the hierarchical layout.
	FanOut int
	// MinRadius and RadiusPerNode size the circular layout.
	MinRadius     float64
	RadiusPerNode float64
}

var DefaultDimensions = Dimensions{
	NodeWidth:     280,
	NodeHeight:    300,
	Padding:       50,
	FanOut:        3,
	MinRadius:     300,
	RadiusPerNode: 50,
}

type strategy func(d Dimensions, index, total int) models.Point

var strategies = [...]strategy{
	Grid:         grid,
	Circular:     circular,
	Hierarchical: hierarchical,
}

func (d Dimensions) stepX() float64 { return d.NodeWidth + d.Padding }
func (d Dimensions) stepY() float64 { return d.NodeHeight + d.Padding }

func grid(d Dimensions, index, total int) models.Point {
	cols := int(math.Ceil(math.Sqrt(float64(total))))
	col := index % cols
	row := index / cols
	return models.Point{
		X: float64(col) * d.stepX(),
		Y: float64(row) * d.stepY(),
	}
}

func circular(d Dimensions, index, total int) models.Point {
	radius := math.Max(d.MinRadius, float64(total)*d.RadiusPerNode)
	angle := float64(index) / float64(total) * 2 * math.Pi
	return models.Point{
		X: radius + radius*math.Cos(angle),
		Y: radius + radius*math.Sin(angle),
	}
}

func hierarchical(d Dimensions, index, total int) models.Point {
	fanOut := d.FanOut
	if fanOut <= 0 {
		fanOut = DefaultDimensions.FanOut
	}
	level := index / fanOut
	posInLevel := index % fanOut
	return models.Point{
		X: float64(posInLevel) * d.stepX(),
		Y: float64(level) * d.stepY(),
	}
}

// Position computes the coordinates of node index out of total.
func (d Dimensions) Position(index, total int, kind Kind) (models.Point, error) {
	if total <= 0 || index < 0 || index >= total {
		return models.Point{}, ErrLayoutInvariant
	}
	if !kind.Valid() {
		return models.Point{}, fmt.Errorf("invalid layout kind %d", int(kind))
	}
	return strategies[kind](d, index, total), nil
}

// Positions returns one position per node, in node order. It is empty when
// total is not positive.
func (d Dimensions) Positions(total int, kind Kind) []models.Point {
	if total <= 0 || !kind.Valid() {
		return []models.Point{}
	}
	out := make([]models.Point, total)
	for i := range out {
		out[i] = strategies[kind](d, i, total)
	}
	return out
}

// Apply re-projects model under kind. Nodes, edges and labels are unchanged;
// only positions differ.
func (d Dimensions) Apply(model *models.GraphModel, kind Kind) *models.GraphModel {
	if model == nil {
		return models.NewGraphModel()
	}
	return model.WithPositions(d.Positions(len(model.Nodes), kind))
}

func Position(index, total int, kind Kind) (models.Point, error) {
	return DefaultDimensions.Position(index, total, kind)
}

func Positions(total int, kind Kind) []models.Point {
	return DefaultDimensions.Positions(total, kind)
}

func Apply(model *models.GraphModel, kind Kind) *models.GraphModel {
	return DefaultDimensions.Apply(model, kind)
}

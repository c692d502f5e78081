// Package drawer implements the drawer registry and the per-drawer state machine.
//
// A drawer is a named turtle: it has a position on the canvas plane, a heading,
// a colour, a pen flag and the path it has drawn so far. The Registry owns every
// drawer; callers refer to drawers only by string ID.
package drawer

import (
	"errors"
	"fmt"
	"math"
)

// CanvasZ is the fixed depth of the drawing plane.
const CanvasZ = 0.0

var (
	// ErrNotFound is returned for operations on an absent drawer.
	ErrNotFound = errors.New("drawer does not exist")
	// ErrAlreadyExists is returned when creating a drawer whose ID is live.
	ErrAlreadyExists = errors.New("drawer already exists")
	// ErrInvalidID is returned when creating a drawer with an empty ID.
	ErrInvalidID = errors.New("invalid drawer id")
)

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Point is a position on the canvas plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Color is a linear RGBA colour with channels in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// White is the colour of a new drawer.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// NewColor returns a colour with every channel clamped to [0, 1].
func NewColor(r, g, b, a float64) Color {
	return Color{R: clamp01(r), G: clamp01(g), B: clamp01(b), A: clamp01(a)}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Segment is a stroke drawn while the pen was enabled.
type Segment struct {
	Start    Point  `json:"start"`
	End      Point  `json:"end"`
	Color    Color  `json:"color"`
	DrawerID string `json:"drawer"`
}

// Polygon is a filled shape produced by rectangle or fill.
type Polygon struct {
	Points   []Point `json:"points"`
	Color    Color   `json:"color"`
	DrawerID string  `json:"drawer"`
}

// State is a value copy of a drawer. It is what readers and the persistence
// codec see; mutating it does not affect the registry.
type State struct {
	ID       string    `json:"id"`
	Position Point     `json:"position"`
	Heading  float64   `json:"heading"`
	Color    Color     `json:"color"`
	Enabled  bool      `json:"enabled"`
	Segments []Segment `json:"segments,omitempty"`
	Polygons []Polygon `json:"polygons,omitempty"`
}

// NormalizeHeading maps degrees onto [0, 360).
func NormalizeHeading(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// snap zeroes tiny trigonometric residue so that quarter turns land exactly.
func snap(v float64) float64 {
	if math.Abs(v) < 1e-6 {
		return 0
	}
	return v
}

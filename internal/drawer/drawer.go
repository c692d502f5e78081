package drawer

import (
	"math"
	"slices"
	"sync"
)

// Drawer is a live turtle owned by a Registry.
// Every method locks the drawer for its whole duration, so observers never see
// a half-applied move, turn or colour change.
type Drawer struct {
	id      string
	mu      sync.Mutex
	removed bool

	pos      Point
	heading  float64
	color    Color
	enabled  bool
	segments []Segment
	polygons []Polygon
}

func newDrawer(id string) *Drawer {
	return &Drawer{
		id:      id,
		color:   White,
		enabled: true,
	}
}

func fromState(s State) *Drawer {
	return &Drawer{
		id:       s.ID,
		pos:      s.Position,
		heading:  NormalizeHeading(s.Heading),
		color:    NewColor(s.Color.R, s.Color.G, s.Color.B, s.Color.A),
		enabled:  s.Enabled,
		segments: slices.Clone(s.Segments),
		polygons: clonePolygons(s.Polygons),
	}
}

// ID returns the drawer's identifier.
func (d *Drawer) ID() string {
	return d.id
}

// with runs fn under the drawer lock, failing if the drawer was removed.
func (d *Drawer) with(fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return notFound(d.id)
	}
	fn()
	return nil
}

// Center moves the drawer to the origin and resets its heading.
func (d *Drawer) Center() error {
	return d.with(func() {
		d.pos = Point{}
		d.heading = 0
	})
}

// Rotate turns the drawer counter-clockwise by deg degrees.
func (d *Drawer) Rotate(deg float64) error {
	return d.with(func() {
		d.heading = NormalizeHeading(d.heading + deg)
	})
}

// SetAngle sets the heading to deg degrees.
func (d *Drawer) SetAngle(deg float64) error {
	return d.with(func() {
		d.heading = NormalizeHeading(deg)
	})
}

// PointTo turns the drawer to face (x, y). Facing its own position is a no-op.
func (d *Drawer) PointTo(x, y float64) error {
	return d.with(func() {
		dx, dy := x-d.pos.X, y-d.pos.Y
		if dx == 0 && dy == 0 {
			return
		}
		d.heading = NormalizeHeading(math.Atan2(dy, dx) * 180 / math.Pi)
	})
}

// Forward moves the drawer dist units along its heading, drawing a segment when
// the pen is enabled. A negative distance moves backward.
func (d *Drawer) Forward(dist float64) error {
	return d.with(func() {
		rad := d.heading * math.Pi / 180
		start := d.pos
		end := Point{
			X: start.X + dist*snap(math.Cos(rad)),
			Y: start.Y + dist*snap(math.Sin(rad)),
		}
		if d.enabled {
			d.segments = append(d.segments, Segment{Start: start, End: end, Color: d.color, DrawerID: d.id})
		}
		d.pos = end
	})
}

// SetColor sets the colour used by later strokes; channels are clamped.
func (d *Drawer) SetColor(r, g, b, a float64) error {
	return d.with(func() {
		d.color = NewColor(r, g, b, a)
	})
}

// Enable turns the pen on.
func (d *Drawer) Enable() error {
	return d.with(func() {
		d.enabled = true
	})
}

// Disable turns the pen off; later moves draw nothing.
func (d *Drawer) Disable() error {
	return d.with(func() {
		d.enabled = false
	})
}

// Position returns the drawer's coordinates.
func (d *Drawer) Position() (x, y float64, err error) {
	err = d.with(func() {
		x, y = d.pos.X, d.pos.Y
	})
	return x, y, err
}

// Rectangle adds a filled w*h rectangle with one corner at the drawer position.
func (d *Drawer) Rectangle(w, h float64) error {
	return d.with(func() {
		p := d.pos
		d.polygons = append(d.polygons, Polygon{
			Points: []Point{
				p,
				{X: p.X + w, Y: p.Y},
				{X: p.X + w, Y: p.Y + h},
				{X: p.X, Y: p.Y + h},
			},
			Color:    d.color,
			DrawerID: d.id,
		})
	})
}

// Fill fills the first closed loop in the drawer's path when that loop
// surrounds the drawer. It reports whether a polygon was added.
func (d *Drawer) Fill() (bool, error) {
	var filled bool
	err := d.with(func() {
		loop := firstLoop(d.segments)
		if loop == nil || !containsPoint(loop, d.pos) {
			return
		}
		d.polygons = append(d.polygons, Polygon{Points: loop, Color: d.color, DrawerID: d.id})
		filled = true
	})
	return filled, err
}

// wipe clears drawn output, keeping the transform, colour and pen.
func (d *Drawer) wipe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = nil
	d.polygons = nil
}

// markRemoved invalidates the drawer for holders of stale handles.
func (d *Drawer) markRemoved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = true
}

// State returns a consistent copy of the drawer.
func (d *Drawer) State() (State, error) {
	var s State
	err := d.with(func() {
		s = State{
			ID:       d.id,
			Position: d.pos,
			Heading:  d.heading,
			Color:    d.color,
			Enabled:  d.enabled,
			Segments: slices.Clone(d.segments),
			Polygons: clonePolygons(d.polygons),
		}
	})
	return s, err
}

func clonePolygons(polys []Polygon) []Polygon {
	if polys == nil {
		return nil
	}
	out := make([]Polygon, len(polys))
	for i, p := range polys {
		p.Points = slices.Clone(p.Points)
		out[i] = p
	}
	return out
}

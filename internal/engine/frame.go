package engine

import (
	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/lua"
	"github.com/zot/turtle/internal/notify"
)

// Turtle is the part of a drawer a renderer shows as the turtle sprite.
type Turtle struct {
	ID      string       `json:"id"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	Heading float64      `json:"heading"`
	Color   drawer.Color `json:"color"`
	Enabled bool         `json:"enabled"`
}

// DemoStatus describes what the demo buffer is doing.
type DemoStatus struct {
	State string `json:"state"`
	Done  int    `json:"done,omitempty"`
	Total int    `json:"total,omitempty"`
}

// Frame is everything a renderer needs after one tick. Console lines are
// included only when new output arrived since the previous frame.
type Frame struct {
	Tick          uint64                `json:"tick"`
	Turtles       []Turtle              `json:"turtles"`
	Segments      []drawer.Segment      `json:"segments"`
	Polygons      []drawer.Polygon      `json:"polygons"`
	Faults        []lua.Fault           `json:"faults,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
	Console       []notify.Line         `json:"console,omitempty"`
	Demo          DemoStatus            `json:"demo"`
}

func (e *Engine) frame(report lua.TickReport, playing bool) Frame {
	states := e.registry.Snapshots()
	f := Frame{
		Tick:          report.Tick,
		Turtles:       make([]Turtle, 0, len(states)),
		Faults:        report.Faults,
		Notifications: e.hub.Drain(),
		Demo:          e.demoStatus(),
	}
	for _, s := range states {
		f.Turtles = append(f.Turtles, Turtle{
			ID:      s.ID,
			X:       s.Position.X,
			Y:       s.Position.Y,
			Heading: s.Heading,
			Color:   s.Color,
			Enabled: s.Enabled,
		})
		f.Segments = append(f.Segments, s.Segments...)
		f.Polygons = append(f.Polygons, s.Polygons...)
	}

	console := e.hub.Console()
	seq := console.Seq()
	e.mu.Lock()
	if seq != e.consoleSeq {
		e.consoleSeq = seq
		f.Console = console.Lines()
	}
	e.mu.Unlock()

	if playing {
		e.Log(4, "Engine: tick %d demo %d/%d", f.Tick, f.Demo.Done, f.Demo.Total)
	}
	return f
}

func (e *Engine) demoStatus() DemoStatus {
	st := DemoStatus{State: e.demos.State().String()}
	if e.demos.State() == demo.Playing {
		st.Done, st.Total = e.demos.Progress()
	}
	return st
}

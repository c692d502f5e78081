package lua

import (
	"context"
	"sync"

	"github.com/zot/turtle/internal/input"
)

// Fault records one callback failure during a tick.
type Fault struct {
	Context  string `json:"context"`
	Callback string `json:"callback"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick         uint64  `json:"tick"`
	Callbacks    int     `json:"callbacks"`
	InputChanged bool    `json:"inputChanged"`
	Faults       []Fault `json:"faults,omitempty"`
}

// Dispatcher calls script callbacks once per tick.
type Dispatcher struct {
	host *Host
	last input.Snapshot
	tick uint64
	mu   sync.Mutex
}

// NewDispatcher creates a dispatcher over host's contexts.
func NewDispatcher(host *Host) *Dispatcher {
	return &Dispatcher{host: host, last: input.NewSnapshot()}
}

// Tick calls on_draw on every healthy context in name order, followed by
// on_input(keys) when the pressed keys differ from the previous tick. A
// failing context is faulted and skipped from then on; the others still run.
func (d *Dispatcher) Tick(ctx context.Context, snap input.Snapshot) TickReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tick++
	changed := !snap.Equal(d.last)
	d.last = snap
	report := TickReport{Tick: d.tick, InputChanged: changed}

	var keys []string
	if changed {
		keys = snap.Keys()
		if keys == nil {
			keys = []string{}
		}
	}

	for _, c := range d.host.Contexts() {
		if ctx.Err() != nil {
			break
		}
		if c.State() == Faulted {
			continue
		}
		if !d.run(ctx, c, OnDraw, &report) {
			continue
		}
		if changed {
			d.run(ctx, c, OnInput, &report, keys)
		}
	}
	if len(report.Faults) > 0 || changed {
		d.host.Log(3, "Tick %d: %d callbacks, %d faults", report.Tick, report.Callbacks, len(report.Faults))
	}
	return report
}

// run invokes one callback and records it. It returns false if the context
// faulted.
func (d *Dispatcher) run(ctx context.Context, c *Context, callback string, report *TickReport, args ...any) bool {
	ran, err := c.invoke(ctx, callback, args...)
	if ran {
		report.Callbacks++
	}
	if err != nil {
		report.Faults = append(report.Faults, Fault{
			Context:  c.Name(),
			Callback: callback,
			Err:      err,
			Message:  err.Error(),
		})
		return false
	}
	return true
}

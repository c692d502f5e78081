package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Reserved global names a script defines to receive callbacks.
const (
	OnDraw        = "on_draw"
	OnInput       = "on_input"
	OnParamChange = "on_param_change"
)

// ErrFaulted is returned when calling into a faulted context.
var ErrFaulted = errors.New("script context is faulted")

// State is the lifecycle state of a script context.
type State int

const (
	Idle State = iota
	Running
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	}
	return "idle"
}

// Context is one loaded script.
type Context struct {
	name     string
	source   string
	rt       *Runtime
	host     *Host
	loadedAt time.Time

	mu    sync.Mutex
	state State
	fault error
}

// Name returns the script name.
func (c *Context) Name() string {
	return c.name
}

// Source returns the script source the context was loaded from.
func (c *Context) Source() string {
	return c.source
}

// LoadedAt returns when the context was loaded.
func (c *Context) LoadedAt() time.Time {
	return c.loadedAt
}

// State returns the context's current state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fault returns the error that faulted the context, if any.
func (c *Context) Fault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault
}

// Reset clears a fault so the context receives callbacks again.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Faulted {
		c.host.Log(1, "Script %s: fault cleared", c.name)
	}
	c.state = Idle
	c.fault = nil
}

// Callbacks returns which reserved callbacks the script currently defines.
func (c *Context) Callbacks() []string {
	v, err := c.rt.execute(func() (interface{}, error) {
		var names []string
		for _, name := range []string{OnDraw, OnInput, OnParamChange} {
			if c.rt.global(name) != nil {
				names = append(names, name)
			}
		}
		return names, nil
	})
	if err != nil {
		return nil
	}
	names, _ := v.([]string)
	return names
}

// TriggerParamChange calls on_param_change(name, value) if the script
// defines it.
func (c *Context) TriggerParamChange(ctx context.Context, name string, value any) error {
	_, err := c.invoke(ctx, OnParamChange, name, value)
	return err
}

// invoke runs one callback within the callback budget. It reports whether
// the callback exists. A failure faults the context and is reported to the
// host's sink.
func (c *Context) invoke(ctx context.Context, callback string, args ...any) (bool, error) {
	c.mu.Lock()
	if c.state == Faulted {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrFaulted, c.name)
	}
	c.state = Running
	c.mu.Unlock()

	ran := false
	_, err := c.rt.execute(func() (interface{}, error) {
		fn := c.rt.global(callback)
		if fn == nil {
			return nil, nil
		}
		ran = true
		L := c.rt.State
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = GoToLua(L, a)
		}
		cctx, cancel := context.WithTimeout(ctx, c.host.budget())
		defer cancel()
		_, err := c.rt.call(cctx, c.name, callback, fn, 0, largs...)
		return nil, err
	})

	c.mu.Lock()
	if errors.Is(err, ErrClosed) {
		// replaced or unloaded while this tick was running
		c.state = Idle
		c.mu.Unlock()
		return false, nil
	}
	if err != nil {
		c.state = Faulted
		c.fault = err
	} else {
		c.state = Idle
	}
	c.mu.Unlock()

	if err != nil {
		c.host.report(err)
	}
	return ran, err
}

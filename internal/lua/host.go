package lua

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/notify"
)

const panelName = "panel"

// Output is what a command-panel fragment produced.
type Output struct {
	Result  string        `json:"result"`
	Values  []interface{} `json:"values,omitempty"`
	Printed []string      `json:"printed,omitempty"`
}

// Host owns the script contexts and the command-panel runtime.
type Host struct {
	config   *config.Config
	surface  *Surface
	sink     notify.Sink
	contexts map[string]*Context
	mu       sync.RWMutex

	panel   *Runtime
	panelMu sync.Mutex
}

// NewHost creates a host whose scripts drive exec.
func NewHost(cfg *config.Config, exec *command.Executor) *Host {
	return &Host{
		config:   cfg,
		surface:  NewSurface(exec),
		sink:     exec.Sink(),
		contexts: make(map[string]*Context),
	}
}

// Log logs a message via the config.
func (h *Host) Log(level int, format string, args ...interface{}) {
	h.config.Log(level, format, args...)
}

func (h *Host) budget() time.Duration {
	if h.config == nil || h.config.Engine.CallbackBudget <= 0 {
		return 50 * time.Millisecond
	}
	return h.config.Engine.CallbackBudget.Duration()
}

func (h *Host) execTimeout() time.Duration {
	if h.config == nil || h.config.Engine.ExecTimeout <= 0 {
		return 5 * time.Second
	}
	return h.config.Engine.ExecTimeout.Duration()
}

// report sends a script failure to the sink.
func (h *Host) report(err error) {
	h.Log(1, "Script error: %v", err)
	var re *RuntimeError
	if errors.As(err, &re) && re.Trace != "" {
		h.Log(3, "Script traceback:\n%s", re.Trace)
	}
	h.sink.Notify(notify.Error, err.Error())
}

// Load compiles source in a fresh runtime and runs its top level. On success
// it replaces any context with the same name, which also clears a fault. On
// failure the previous context, if any, stays in place.
func (h *Host) Load(name, source string) (*Context, error) {
	rt := NewRuntime(h.config, name, h.surface)
	_, err := rt.execute(func() (interface{}, error) {
		fn, err := rt.compile(name, source)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.execTimeout())
		defer cancel()
		_, err = rt.call(ctx, name, "", fn, 0)
		return nil, err
	})
	if err != nil {
		rt.Shutdown()
		h.Log(1, "Script %s: load failed: %v", name, err)
		return nil, err
	}

	c := &Context{
		name:     name,
		source:   source,
		rt:       rt,
		host:     h,
		loadedAt: time.Now(),
	}
	h.mu.Lock()
	old := h.contexts[name]
	h.contexts[name] = c
	h.mu.Unlock()

	if old != nil {
		old.rt.Shutdown()
		h.Log(1, "Script %s: reloaded", name)
	} else {
		h.Log(1, "Script %s: loaded", name)
	}
	return c, nil
}

// Unload discards the named context. Drawers it created stay.
func (h *Host) Unload(name string) bool {
	h.mu.Lock()
	c, ok := h.contexts[name]
	delete(h.contexts, name)
	h.mu.Unlock()

	if ok {
		c.rt.Shutdown()
		h.Log(1, "Script %s: unloaded", name)
	}
	return ok
}

// Context returns the named context.
func (h *Host) Context(name string) (*Context, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.contexts[name]
	return c, ok
}

// Contexts returns every context in name order.
func (h *Host) Contexts() []*Context {
	h.mu.RLock()
	out := make([]*Context, 0, len(h.contexts))
	for _, c := range h.contexts {
		out = append(out, c)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Context) int { return strings.Compare(a.name, b.name) })
	return out
}

// Reset clears the fault on every context.
func (h *Host) Reset() {
	for _, c := range h.Contexts() {
		c.Reset()
	}
}

// ExecuteOnce runs a fragment in the command-panel runtime, whose globals
// persist between calls. An expression fragment returns its value. If ctx
// has no deadline the exec timeout applies. A panel that times out is
// replaced by a fresh one.
func (h *Host) ExecuteOnce(ctx context.Context, fragment string) (Output, error) {
	h.panelMu.Lock()
	defer h.panelMu.Unlock()

	if h.panel == nil {
		h.panel = NewRuntime(h.config, panelName, h.surface)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.execTimeout())
		defer cancel()
	}

	rt := h.panel
	var out Output
	_, err := rt.execute(func() (interface{}, error) {
		fn, err := rt.compile(panelName, "return "+fragment)
		if err != nil {
			if fn, err = rt.compile(panelName, fragment); err != nil {
				return nil, err
			}
		}

		prev := rt.printer
		rt.printer = func(msg string) {
			out.Printed = append(out.Printed, msg)
			prev(msg)
		}
		defer func() { rt.printer = prev }()

		results, err := rt.call(ctx, panelName, "", fn, lua.MultRet)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(results))
		for i, v := range results {
			parts[i] = Describe(v)
			out.Values = append(out.Values, LuaToGo(v))
		}
		out.Result = strings.Join(parts, "\t")
		return nil, nil
	})

	var re *RuntimeError
	if errors.As(err, &re) && re.Timeout() {
		h.Log(1, "Command panel timed out, starting a fresh one")
		h.panel.Shutdown()
		h.panel = nil
	}
	return out, err
}

// Shutdown stops every runtime.
func (h *Host) Shutdown() {
	h.mu.Lock()
	contexts := h.contexts
	h.contexts = make(map[string]*Context)
	h.mu.Unlock()
	for _, c := range contexts {
		c.rt.Shutdown()
	}

	h.panelMu.Lock()
	defer h.panelMu.Unlock()
	if h.panel != nil {
		h.panel.Shutdown()
		h.panel = nil
	}
}

// Package engine ties the drawing core together: the drawer registry, the
// Lua host and dispatcher, demo recording, script management and project
// storage. Presenters (the websocket bridge, the MCP server, the headless
// runner) drive it one tick at a time.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/input"
	"github.com/zot/turtle/internal/lua"
	"github.com/zot/turtle/internal/notify"
	"github.com/zot/turtle/internal/storage"
)

// Engine owns every piece of simulation state.
type Engine struct {
	config     *config.Config
	registry   *drawer.Registry
	hub        *notify.Hub
	exec       *command.Executor
	host       *lua.Host
	dispatcher *lua.Dispatcher
	demos      *demo.Buffer
	input      *input.State
	store      storage.Backend
	loader     *lua.HotLoader

	// lifecycle serializes loading and unloading scripts with Restore.
	lifecycle sync.Mutex

	mu         sync.Mutex
	scripts    map[string]*scriptEntry
	saved      map[string]demo.Instance
	consoleSeq uint64
	closed     bool
}

// New creates an engine and opens the configured storage backend.
func New(cfg *config.Config) (*Engine, error) {
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return NewWithStorage(cfg, store), nil
}

// NewWithStorage creates an engine over an already open backend.
func NewWithStorage(cfg *config.Config, store storage.Backend) *Engine {
	reg := drawer.NewRegistry()
	hub := notify.NewHub(cfg, cfg.Engine.ConsoleLines)
	exec := command.NewExecutor(reg, hub)
	demos := demo.NewBuffer(cfg)
	exec.SetRecorder(demos)
	host := lua.NewHost(cfg, exec)

	return &Engine{
		config:     cfg,
		registry:   reg,
		hub:        hub,
		exec:       exec,
		host:       host,
		dispatcher: lua.NewDispatcher(host),
		demos:      demos,
		input:      input.NewState(),
		store:      store,
		scripts:    make(map[string]*scriptEntry),
		saved:      make(map[string]demo.Instance),
	}
}

// Log prints through the config's verbosity filter.
func (e *Engine) Log(level int, format string, args ...interface{}) {
	e.config.Log(level, format, args...)
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Registry returns the drawer registry.
func (e *Engine) Registry() *drawer.Registry {
	return e.registry
}

// Host returns the Lua host.
func (e *Engine) Host() *lua.Host {
	return e.host
}

// Hub returns the notification and console hub.
func (e *Engine) Hub() *notify.Hub {
	return e.hub
}

// Input returns the live keyboard state.
func (e *Engine) Input() *input.State {
	return e.input
}

// Storage returns the project storage backend.
func (e *Engine) Storage() storage.Backend {
	return e.store
}

// Start restores the autosaved project, loads the scripts directory and,
// when configured, starts watching it for changes.
func (e *Engine) Start() error {
	if name := e.config.Storage.Autosave; name != "" && e.store.Exists(name) {
		if err := e.Load(name); err != nil {
			e.Log(0, "Engine: cannot restore %q: %v", name, err)
			e.hub.Notify(notify.Warning, fmt.Sprintf("autosave not restored: %v", err))
		} else {
			e.Log(1, "Engine: restored %q", name)
		}
	}

	dir := e.scriptsDir()
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		e.Log(1, "Engine: no scripts directory at %s", dir)
		return nil
	}

	loader, err := lua.NewHotLoader(e.config, dir, e)
	if err != nil {
		return fmt.Errorf("hot loader: %w", err)
	}
	if failed := loader.LoadAll(); len(failed) > 0 {
		e.Log(1, "Engine: scripts failed to load: %v", failed)
	}
	if !e.config.Scripts.Watch {
		loader.Stop()
		return nil
	}
	if err := loader.Start(); err != nil {
		loader.Stop()
		return fmt.Errorf("hot loader: %w", err)
	}

	e.mu.Lock()
	e.loader = loader
	e.mu.Unlock()
	return nil
}

func (e *Engine) scriptsDir() string {
	dir := e.config.Scripts.Dir
	if dir == "" || filepath.IsAbs(dir) || e.config.Server.Dir == "" {
		return dir
	}
	return filepath.Join(e.config.Server.Dir, dir)
}

// Tick runs one simulation step: script callbacks first, then the next demo
// step if one is playing.
func (e *Engine) Tick(ctx context.Context, snap input.Snapshot) Frame {
	report := e.dispatcher.Tick(ctx, snap)

	playing, err := e.demos.Advance(e.exec)
	if err != nil {
		e.Log(1, "Engine: demo stopped: %v", err)
		e.hub.Notify(notify.Error, err.Error())
	}

	return e.frame(report, playing)
}

// Step ticks with the live keyboard state.
func (e *Engine) Step(ctx context.Context) Frame {
	return e.Tick(ctx, e.input.Snapshot())
}

// Exec runs one command-panel line. The line is echoed to the console and a
// non-empty result is printed after it.
func (e *Engine) Exec(ctx context.Context, line string) (lua.Output, error) {
	e.hub.Console().Push(notify.Line{Kind: notify.LineUserInput, Text: line})
	out, err := e.host.ExecuteOnce(ctx, line)
	if err != nil {
		e.hub.Notify(notify.Error, err.Error())
		return out, err
	}
	if out.Result != "" && len(out.Values) > 0 {
		e.hub.Print(out.Result)
	}
	return out, nil
}

// ListDrawers returns the drawer IDs in registry order.
func (e *Engine) ListDrawers() []string {
	return e.registry.List()
}

// DrawerSnapshot returns a copy of one drawer.
func (e *Engine) DrawerSnapshot(id string) (drawer.State, error) {
	return e.registry.Snapshot(id)
}

// AllSegments returns every drawn segment in registry order.
func (e *Engine) AllSegments() []drawer.Segment {
	return e.registry.Segments()
}

// AllPolygons returns every filled polygon in registry order.
func (e *Engine) AllPolygons() []drawer.Polygon {
	return e.registry.Polygons()
}

// Close stops the watcher and scripts, autosaves, and closes storage.
// It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	loader := e.loader
	e.loader = nil
	e.mu.Unlock()

	if loader != nil {
		loader.Stop()
	}
	e.demos.Clear()

	var saveErr error
	if name := e.config.Storage.Autosave; name != "" {
		if saveErr = e.Save(name); saveErr != nil {
			e.Log(0, "Engine: autosave failed: %v", saveErr)
		} else {
			e.Log(1, "Engine: autosaved %q", name)
		}
	}

	e.host.Shutdown()
	if err := e.store.Close(); err != nil {
		return err
	}
	return saveErr
}

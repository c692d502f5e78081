package lua

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zot/turtle/internal/config"
)

const reloadDelay = 100 * time.Millisecond

// ScriptTarget receives the scripts the hot loader finds.
type ScriptTarget interface {
	// LoadScript (re)loads a script from its file contents.
	LoadScript(name, source string) error
	// DeleteScript drops a script whose file went away.
	DeleteScript(name string)
}

// ScriptName maps a file path to its script name.
func ScriptName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}

func isScript(path string) bool {
	return strings.HasSuffix(path, ".lua")
}

// links remembers which scripts are symlinks so edits to the file they
// point at are noticed too. Directories are reference counted because
// several links may share one.
type links struct {
	targets map[string]string // script path -> directory of the link target
	dirs    map[string]int
}

// HotLoader watches the scripts directory and reloads changed files after
// they have been quiet for a moment.
type HotLoader struct {
	config  *config.Config
	dir     string
	watcher *fsnotify.Watcher
	target  ScriptTarget

	mu     sync.Mutex
	links  links
	timers map[string]*time.Timer // script path -> pending reload
	delay  time.Duration

	reloadMu sync.Mutex // reloads reach the target one at a time
	done     chan struct{}
	stopOnce sync.Once
}

// NewHotLoader creates a hot loader for dir.
func NewHotLoader(cfg *config.Config, dir string, target ScriptTarget) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &HotLoader{
		config:  cfg,
		dir:     filepath.Clean(dir),
		watcher: watcher,
		target:  target,
		links: links{
			targets: make(map[string]string),
			dirs:    make(map[string]int),
		},
		timers: make(map[string]*time.Timer),
		delay:  reloadDelay,
		done:   make(chan struct{}),
	}, nil
}

// Log logs a message via the config.
func (h *HotLoader) Log(level int, format string, args ...interface{}) {
	h.config.Log(level, "HotLoader: "+format, args...)
}

// scripts lists the .lua files in the directory in name order.
func (h *HotLoader) scripts() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if isScript(entry.Name()) {
			paths = append(paths, filepath.Join(h.dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadAll loads every script in the directory in name order. It returns
// the names that failed to load.
func (h *HotLoader) LoadAll() []string {
	paths, err := h.scripts()
	if err != nil {
		h.Log(1, "cannot read %s: %v", h.dir, err)
		return nil
	}
	var failed []string
	for _, path := range paths {
		if !h.reload(path) {
			failed = append(failed, ScriptName(path))
		}
	}
	return failed
}

// Start begins watching for file changes.
func (h *HotLoader) Start() error {
	h.mu.Lock()
	err := h.watchLocked(h.dir)
	h.mu.Unlock()
	if err != nil {
		return err
	}

	paths, err := h.scripts()
	if err != nil {
		h.Log(1, "error scanning symlinks: %v", err)
	}
	for _, path := range paths {
		h.relink(path)
	}

	go h.eventLoop()
	h.Log(1, "watching %s for changes", h.dir)
	return nil
}

// Stop stops watching and drops pending reloads. It is safe to call twice.
func (h *HotLoader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for path, t := range h.timers {
			t.Stop()
			delete(h.timers, path)
		}
		h.mu.Unlock()
		err = h.watcher.Close()
	})
	return err
}

// relink refreshes the symlink bookkeeping for one script file.
func (h *HotLoader) relink(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unlinkLocked(path)
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		h.Log(2, "cannot resolve symlink %s: %v", path, err)
		return
	}
	dir := filepath.Dir(resolved)
	h.links.targets[path] = dir
	h.watchLocked(dir)
	h.Log(2, "following %s into %s", path, dir)
}

func (h *HotLoader) unlinkLocked(path string) {
	if dir, ok := h.links.targets[path]; ok {
		delete(h.links.targets, path)
		h.unwatchLocked(dir)
	}
}

func (h *HotLoader) watchLocked(dir string) error {
	h.links.dirs[dir]++
	if h.links.dirs[dir] > 1 {
		return nil
	}
	if err := h.watcher.Add(dir); err != nil {
		h.links.dirs[dir]--
		return err
	}
	h.Log(2, "added watch for %s", dir)
	return nil
}

func (h *HotLoader) unwatchLocked(dir string) {
	h.links.dirs[dir]--
	if h.links.dirs[dir] > 0 {
		return
	}
	delete(h.links.dirs, dir)
	h.watcher.Remove(dir)
	h.Log(2, "removed watch for %s", dir)
}

func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.Log(1, "watcher error: %v", err)
		}
	}
}

func (h *HotLoader) handleEvent(event fsnotify.Event) {
	if !isScript(event.Name) {
		return
	}
	h.Log(3, "event %s on %s", event.Op, event.Name)

	if filepath.Dir(event.Name) == h.dir {
		if event.Has(fsnotify.Create) {
			h.relink(event.Name)
		} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			h.mu.Lock()
			h.unlinkLocked(event.Name)
			h.mu.Unlock()
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		h.schedule(event.Name)
	}
}

// schedule (re)starts the quiet period for a changed file. Removals are
// scheduled too; whether the file exists when the timer fires decides.
func (h *HotLoader) schedule(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.timers[path]; ok {
		t.Reset(h.delay)
		return
	}
	h.timers[path] = time.AfterFunc(h.delay, func() { h.fire(path) })
}

func (h *HotLoader) fire(path string) {
	h.mu.Lock()
	delete(h.timers, path)
	h.mu.Unlock()

	select {
	case <-h.done:
		return
	default:
	}
	h.reload(path)
}

// reload hands the script's current contents to the target, or deletes the
// script if its file is gone. A panicking target is logged and the watcher
// keeps running.
func (h *HotLoader) reload(changed string) (ok bool) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			h.Log(0, "PANIC reloading %s: %v", changed, r)
			ok = false
		}
	}()

	path := h.scriptFor(changed)
	if path == "" {
		if filepath.Dir(changed) == h.dir {
			name := ScriptName(changed)
			h.Log(1, "%s removed", name)
			h.target.DeleteScript(name)
		}
		return true
	}

	content, err := os.ReadFile(path)
	if err != nil {
		h.Log(1, "error reading %s: %v", path, err)
		return false
	}
	name := ScriptName(path)
	h.Log(1, "reloading %s", name)
	if err := h.target.LoadScript(name, string(content)); err != nil {
		h.Log(1, "error reloading %s: %v", name, err)
		return false
	}
	return true
}

// scriptFor maps a changed path to the script file to reload: the path
// itself when it is in the scripts directory and still exists, or the
// symlink pointing at it. It returns "" when there is nothing to load.
func (h *HotLoader) scriptFor(changed string) string {
	if filepath.Dir(changed) == h.dir {
		if _, err := os.Stat(changed); err != nil {
			return ""
		}
		return changed
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dir, base := filepath.Dir(changed), filepath.Base(changed)
	for path, linkDir := range h.links.targets {
		if linkDir != dir {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(path); err == nil && filepath.Base(resolved) == base {
			return path
		}
	}
	return ""
}

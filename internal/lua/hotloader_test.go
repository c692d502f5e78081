package lua

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zot/turtle/internal/config"
)

// mockTarget records what the hot loader hands it
type mockTarget struct {
	loaded  []string
	sources map[string]string
	deleted []string
	loadErr error
	mu      sync.Mutex
}

func newMockTarget() *mockTarget {
	return &mockTarget{sources: make(map[string]string)}
}

func (m *mockTarget) LoadScript(name, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, name)
	m.sources[name] = source
	return m.loadErr
}

func (m *mockTarget) DeleteScript(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, name)
}

func (m *mockTarget) loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loaded...)
}

func (m *mockTarget) deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *mockTarget) source(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[name]
}

// Helper to create a mock config
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.Verbosity = 0 // Quiet for tests
	return cfg
}

func startLoader(t *testing.T, dir string, target ScriptTarget) *HotLoader {
	t.Helper()
	h, err := NewHotLoader(testConfig(), dir, target)
	if err != nil {
		t.Fatalf("NewHotLoader failed: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { h.Stop() })
	// Wait for watcher to be ready
	time.Sleep(50 * time.Millisecond)
	return h
}

func TestScriptName(t *testing.T) {
	if got := ScriptName("/x/y/square.lua"); got != "square" {
		t.Errorf("ScriptName = %q, want square", got)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.lua"), []byte("-- b"), 0644)
	os.WriteFile(filepath.Join(dir, "a.lua"), []byte("-- a"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	target := newMockTarget()
	target.loadErr = errors.New("boom")
	h, err := NewHotLoader(testConfig(), dir, target)
	if err != nil {
		t.Fatalf("NewHotLoader failed: %v", err)
	}
	defer h.Stop()

	failed := h.LoadAll()
	loads := target.loads()
	if len(loads) != 2 || loads[0] != "a" || loads[1] != "b" {
		t.Errorf("loads = %v, want [a b]", loads)
	}
	if len(failed) != 2 {
		t.Errorf("failed = %v, want both", failed)
	}
}

func TestHotLoaderStart(t *testing.T) {
	dir := t.TempDir()
	h := startLoader(t, dir, newMockTarget())

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.links.dirs[filepath.Clean(dir)] != 1 {
		t.Errorf("scripts dir not watched, got %v", h.links.dirs)
	}
}

func TestDetectLuaFileModification(t *testing.T) {
	dir := t.TempDir()
	luaFile := filepath.Join(dir, "app.lua")
	os.WriteFile(luaFile, []byte("-- initial"), 0644)

	target := newMockTarget()
	startLoader(t, dir, target)

	if err := os.WriteFile(luaFile, []byte("-- modified"), 0644); err != nil {
		t.Fatalf("Failed to modify file: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if len(target.loads()) == 0 {
		t.Fatal("Expected reload to be triggered")
	}
	if got := target.source("app"); got != "-- modified" {
		t.Errorf("source = %q, want modified contents", got)
	}
}

func TestIgnoreNonLuaFiles(t *testing.T) {
	dir := t.TempDir()
	target := newMockTarget()
	startLoader(t, dir, target)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("test"), 0644)
	os.WriteFile(filepath.Join(dir, "data.json"), []byte("{}"), 0644)
	time.Sleep(300 * time.Millisecond)

	if n := len(target.loads()); n != 0 {
		t.Errorf("Expected no reloads for non-lua files, got %d", n)
	}
}

func TestDebounceRapidChanges(t *testing.T) {
	dir := t.TempDir()
	luaFile := filepath.Join(dir, "app.lua")
	os.WriteFile(luaFile, []byte("-- v0"), 0644)

	target := newMockTarget()
	startLoader(t, dir, target)

	for i := 1; i <= 5; i++ {
		os.WriteFile(luaFile, []byte("-- v"+string(rune('0'+i))), 0644)
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if n := len(target.loads()); n != 1 {
		t.Errorf("Expected 1 reload due to debouncing, got %d", n)
	}
	if got := target.source("app"); got != "-- v5" {
		t.Errorf("source = %q, want last write", got)
	}
}

func TestDeletedFileDeletesScript(t *testing.T) {
	dir := t.TempDir()
	luaFile := filepath.Join(dir, "app.lua")
	os.WriteFile(luaFile, []byte("-- initial"), 0644)

	target := newMockTarget()
	startLoader(t, dir, target)

	os.WriteFile(luaFile, []byte("-- modified"), 0644)
	time.Sleep(20 * time.Millisecond)
	os.Remove(luaFile)
	time.Sleep(300 * time.Millisecond)

	deletes := target.deletes()
	if len(deletes) != 1 || deletes[0] != "app" {
		t.Errorf("deletes = %v, want [app]", deletes)
	}
	if n := len(target.loads()); n != 0 {
		t.Errorf("Expected no load for a file deleted within the debounce window, got %d", n)
	}
}

func TestScanExistingSymlinks(t *testing.T) {
	dir := t.TempDir()
	targetDir := t.TempDir()
	targetFile := filepath.Join(targetDir, "app.lua")
	os.WriteFile(targetFile, []byte("-- target"), 0644)

	symlinkPath := filepath.Join(dir, "app.lua")
	if err := os.Symlink(targetFile, symlinkPath); err != nil {
		t.Skipf("Cannot create symlinks: %v", err)
	}

	h := startLoader(t, dir, newMockTarget())

	h.mu.Lock()
	tracked := h.links.targets[symlinkPath]
	h.mu.Unlock()
	resolved, _ := filepath.EvalSymlinks(targetFile)
	if tracked != filepath.Dir(resolved) {
		t.Errorf("link target for %s = %q, want %q", symlinkPath, tracked, filepath.Dir(resolved))
	}

	if got := h.scriptFor(filepath.Join(tracked, "app.lua")); got != symlinkPath {
		t.Errorf("scriptFor = %q, want %q", got, symlinkPath)
	}
}

func TestGracefulShutdown(t *testing.T) {
	h, err := NewHotLoader(testConfig(), t.TempDir(), newMockTarget())
	if err != nil {
		t.Fatalf("NewHotLoader failed: %v", err)
	}
	h.Start()

	done := make(chan struct{})
	go func() {
		h.Stop()
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Stop timed out")
	}
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/lua"
	"github.com/zot/turtle/internal/notify"
	"github.com/zot/turtle/internal/project"
	"github.com/zot/turtle/internal/storage"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Scripts.Dir = ""
	cfg.Storage.Autosave = ""
	cfg.Engine.CallbackBudget = config.Duration(100 * time.Millisecond)
	cfg.Engine.ExecTimeout = config.Duration(time.Second)
	return cfg
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewWithStorage(testConfig(), storage.NewMemoryStorage())
	t.Cleanup(func() { e.Close() })
	return e
}

func exec(t *testing.T, e *Engine, line string) lua.Output {
	t.Helper()
	out, err := e.Exec(context.Background(), line)
	require.NoError(t, err)
	return out
}

func TestScriptsDriveFrames(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.LoadScript("walker", `
new("w")
function on_draw()
  forward("w", 2)
  rotate("w", 90)
end
`))

	var f Frame
	for i := 0; i < 4; i++ {
		f = e.Step(context.Background())
	}
	assert.Equal(t, uint64(4), f.Tick)
	require.Len(t, f.Turtles, 1)
	assert.Equal(t, "w", f.Turtles[0].ID)
	assert.InDelta(t, 0, f.Turtles[0].X, 1e-9)
	assert.InDelta(t, 0, f.Turtles[0].Y, 1e-9)
	assert.Len(t, f.Segments, 4)
	assert.Equal(t, "idle", f.Demo.State)

	assert.Equal(t, []string{"w"}, e.ListDrawers())
	assert.Len(t, e.AllSegments(), 4)
	s, err := e.DrawerSnapshot("w")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 4)
}

func TestBrokenScriptIsReported(t *testing.T) {
	e := newEngine(t)
	var ce *lua.CompileError
	require.ErrorAs(t, e.LoadScript("broken", "function ("), &ce)

	// the source is kept so it can be fixed
	s, err := e.Script("broken")
	require.NoError(t, err)
	assert.Equal(t, "function (", s.Source)

	f := e.Step(context.Background())
	require.Len(t, f.Notifications, 1)
	assert.Equal(t, notify.Error, f.Notifications[0].Category)
	require.NotEmpty(t, f.Console)
	assert.Equal(t, notify.LineError, f.Console[len(f.Console)-1].Kind)

	// console lines only come with the frame that produced them
	assert.Empty(t, e.Step(context.Background()).Console)
}

func TestExecEchoesToConsole(t *testing.T) {
	e := newEngine(t)
	out := exec(t, e, "1 + 1")
	assert.Equal(t, "2", out.Result)
	exec(t, e, `print("hi")`)

	lines := e.Hub().Console().Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, notify.Line{Kind: notify.LineUserInput, Text: "1 + 1"}, lines[0])
	assert.Equal(t, notify.Line{Kind: notify.LineStandard, Text: "2"}, lines[1])
	assert.Equal(t, notify.Line{Kind: notify.LineUserInput, Text: `print("hi")`}, lines[2])
	assert.Equal(t, notify.Line{Kind: notify.LineStandard, Text: "hi"}, lines[3])

	_, err := e.Exec(context.Background(), `forward("nobody", 1)`)
	assert.Error(t, err)
}

func TestRubbishBin(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.LoadScript("a", "function on_draw() end"))
	require.NoError(t, e.SetScript("b", "-- b"))

	require.NoError(t, e.TrashScript("a"))
	_, running := e.Host().Context("a")
	assert.False(t, running)
	assert.ErrorIs(t, e.RunScript("a"), ErrScriptDeleted)

	scripts := e.Scripts()
	require.Len(t, scripts, 2)
	assert.True(t, scripts[0].Deleted)
	assert.False(t, scripts[1].Deleted)

	require.NoError(t, e.RestoreScript("a"))
	require.NoError(t, e.RunScript("a"))

	e.DeleteScript("b")
	assert.Equal(t, []string{"b"}, e.EmptyBin())
	assert.ErrorIs(t, e.PurgeScript("b"), ErrScriptNotFound)

	require.NoError(t, e.PurgeScript("a"))
	assert.Empty(t, e.Scripts())
	assert.Empty(t, e.Host().Contexts())

	assert.ErrorIs(t, e.SetScript(" ", ""), ErrInvalidName)
}

func TestSaveAndLoad(t *testing.T) {
	e := newEngine(t)
	exec(t, e, `new("a"); set_color("a", 1, 0, 0, 1); forward("a", 10); rectangle("a", 1, 1)`)
	require.NoError(t, e.SetScript("s", "-- s"))
	require.NoError(t, e.Save("p"))
	before := e.Snapshot()

	exec(t, e, `wipe(); new("b")`)
	require.NoError(t, e.TrashScript("s"))

	require.NoError(t, e.Load("p"))
	after := e.Snapshot()
	assert.Equal(t, before.Drawers, after.Drawers)
	assert.Equal(t, before.Scripts, after.Scripts)

	names, err := e.Projects()
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, names)
}

func TestRestoreRejectsDuplicateScripts(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.SetScript("keep", "-- keep"))
	err := e.Restore(&project.Record{
		Version: project.FormatVersion,
		Scripts: []project.Script{{Name: "s", Source: "-- one"}, {Name: "s", Source: "-- two"}},
	})
	assert.ErrorIs(t, err, project.ErrFormat)
	require.Len(t, e.Scripts(), 1)
	assert.Equal(t, "keep", e.Scripts()[0].Name)
}

func TestReloadDuringRestore(t *testing.T) {
	e := newEngine(t)
	empty := &project.Record{Version: project.FormatVersion}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.LoadScript("watched", "-- reloaded")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, e.Restore(empty))
		}
	}()
	wg.Wait()

	scripts := make(map[string]bool)
	for _, s := range e.Scripts() {
		scripts[s.Name] = true
	}
	for _, c := range e.Host().Contexts() {
		assert.True(t, scripts[c.Name()], "context %s has no script", c.Name())
	}
}

func TestLoadMissingChangesNothing(t *testing.T) {
	e := newEngine(t)
	exec(t, e, `new("keep")`)
	err := e.Load("nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{"keep"}, e.ListDrawers())
}

func TestRecordAndPlay(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.StartRecording())
	exec(t, e, `new("t"); for i = 1, 4 do forward("t", 10); rotate("t", 90) end`)
	inst, err := e.StopRecording("square")
	require.NoError(t, err)
	assert.Equal(t, 9, command.Steps(inst.Steps))
	assert.Len(t, inst.Steps, 2)

	exec(t, e, `remove("t")`)
	require.NoError(t, e.Play("square"))
	assert.Equal(t, demo.Playing, e.DemoState())

	f := e.Step(context.Background())
	assert.Equal(t, DemoStatus{State: "playing", Done: 1, Total: 9}, f.Demo)
	for i := 0; i < 20 && e.DemoState() == demo.Playing; i++ {
		e.Step(context.Background())
	}
	assert.Equal(t, demo.Idle, e.DemoState())

	s, err := e.DrawerSnapshot("t")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 4)

	assert.ErrorIs(t, e.Play("missing"), ErrDemoNotFound)
	_, err = e.StopRecording("x")
	assert.ErrorIs(t, err, demo.ErrNotRunning)
}

func TestNotificationsDroppedWhileRecording(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.StartRecording())
	exec(t, e, `new("t"); notification(1, "hidden"); forward("t", 1)`)
	f := e.Step(context.Background())
	assert.Empty(t, f.Notifications)
	inst, err := e.StopRecording("quiet")
	require.NoError(t, err)
	for _, c := range inst.Steps {
		assert.NotEqual(t, command.OpNotify, c.Op)
	}

	exec(t, e, `notification(1, "shown")`)
	f = e.Step(context.Background())
	require.Len(t, f.Notifications, 1)
	assert.Equal(t, "shown", f.Notifications[0].Message)
}

func TestFailedPlaybackStepIsReported(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.StartRecording())
	exec(t, e, `new("t"); forward("t", 1)`)
	_, err := e.StopRecording("d")
	require.NoError(t, err)

	// "t" still exists, so the replayed new fails
	require.NoError(t, e.Play("d"))
	f := e.Step(context.Background())
	assert.Equal(t, demo.Idle, e.DemoState())
	require.Len(t, f.Notifications, 1)
	assert.Contains(t, f.Notifications[0].Message, "already exists")
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t)
	exec(t, e, `new("a"); forward("a", 3)`)
	require.NoError(t, e.StartRecording())
	exec(t, e, `rotate("a", 45)`)
	_, err := e.StopRecording("turn")
	require.NoError(t, err)

	path, err := e.SaveFile(filepath.Join(dir, "drawing"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "drawing.save"), path)

	demoPath, err := e.ExportDemo("turn", filepath.Join(dir, "turn"))
	require.NoError(t, err)

	other := newEngine(t)
	require.NoError(t, other.OpenFile(path))
	assert.Equal(t, []string{"a"}, other.ListDrawers())
	assert.Len(t, other.Demos(), 1)

	require.NoError(t, other.DeleteDemo("turn"))
	inst, err := other.ImportDemo(demoPath)
	require.NoError(t, err)
	assert.Equal(t, "turn", inst.Name)
	assert.Len(t, other.Demos(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.save"), []byte("junk"), 0644))
	assert.Error(t, other.OpenFile(filepath.Join(dir, "junk.save")))
	assert.Equal(t, []string{"a"}, other.ListDrawers())
}

func TestStartLoadsScriptsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.lua"), []byte(`new("one")`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.lua"), []byte(`error("bad")`), 0644))

	cfg := testConfig()
	cfg.Scripts.Dir = dir
	cfg.Scripts.Watch = false
	e := NewWithStorage(cfg, storage.NewMemoryStorage())
	defer e.Close()

	require.NoError(t, e.Start())
	assert.Equal(t, []string{"one"}, e.ListDrawers())
	assert.Len(t, e.Scripts(), 2)
	_, ok := e.Host().Context("two")
	assert.False(t, ok)
}

func TestAutosave(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "turtle.db")
	cfg.Storage.Autosave = "autosave"

	first, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, first.Start())
	exec(t, first, `new("saved"); forward("saved", 5)`)
	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Start())
	s, err := second.DrawerSnapshot("saved")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 1)
}

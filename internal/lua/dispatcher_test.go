package lua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/input"
	"github.com/zot/turtle/internal/notify"
)

func TestDispatcherDrawsEveryContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("a", `new("a"); function on_draw() forward("a", 1) end`)
	require.NoError(t, err)
	_, err = f.host.Load("b", `new("b"); function on_draw() forward("b", 2) end`)
	require.NoError(t, err)

	d := NewDispatcher(f.host)
	for i := 0; i < 3; i++ {
		report := d.Tick(context.Background(), input.NewSnapshot())
		assert.Equal(t, 2, report.Callbacks)
		assert.Empty(t, report.Faults)
	}

	a, err := f.reg.Snapshot("a")
	require.NoError(t, err)
	assert.Len(t, a.Segments, 3)
	b, err := f.reg.Snapshot("b")
	require.NoError(t, err)
	assert.InDelta(t, 6, b.Position.X, 1e-9)
}

func TestDispatcherIsolatesFaults(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("bad", `function on_draw() error("broken") end`)
	require.NoError(t, err)
	_, err = f.host.Load("good", `new("g"); function on_draw() forward("g", 1) end`)
	require.NoError(t, err)

	d := NewDispatcher(f.host)
	report := d.Tick(context.Background(), input.NewSnapshot())
	require.Len(t, report.Faults, 1)
	assert.Equal(t, "bad", report.Faults[0].Context)
	assert.Equal(t, OnDraw, report.Faults[0].Callback)
	assert.Contains(t, report.Faults[0].Message, "broken")

	bad, ok := f.host.Context("bad")
	require.True(t, ok)
	assert.Equal(t, Faulted, bad.State())

	notes := f.hub.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Error, notes[0].Category)

	// the faulted context is skipped from now on
	report = d.Tick(context.Background(), input.NewSnapshot())
	assert.Empty(t, report.Faults)
	assert.Equal(t, 1, report.Callbacks)

	g, err := f.reg.Snapshot("g")
	require.NoError(t, err)
	assert.Len(t, g.Segments, 2)
}

func TestDispatcherTimesOutRunawayCallback(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("spin", `function on_draw() while true do end end`)
	require.NoError(t, err)
	_, err = f.host.Load("walk", `new("w"); function on_draw() forward("w", 1) end`)
	require.NoError(t, err)

	d := NewDispatcher(f.host)
	report := d.Tick(context.Background(), input.NewSnapshot())
	require.Len(t, report.Faults, 1)

	var re *RuntimeError
	require.ErrorAs(t, report.Faults[0].Err, &re)
	assert.True(t, re.Timeout())
	assert.Equal(t, "spin", re.Name)
	assert.Equal(t, OnDraw, re.Callback)

	w, err := f.reg.Snapshot("w")
	require.NoError(t, err)
	assert.Len(t, w.Segments, 1)
}

func TestDispatcherInputOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("keys", `
calls = 0
function on_draw() print("draw") end
function on_input(keys)
  calls = calls + 1
  print("input " .. table.concat(keys, ","))
end
`)
	require.NoError(t, err)

	d := NewDispatcher(f.host)
	in := input.NewState()

	assert.False(t, d.Tick(context.Background(), in.Snapshot()).InputChanged)

	in.Press("w")
	in.Press("a")
	report := d.Tick(context.Background(), in.Snapshot())
	assert.True(t, report.InputChanged)
	assert.Equal(t, 2, report.Callbacks)

	assert.False(t, d.Tick(context.Background(), in.Snapshot()).InputChanged)

	in.Release("w")
	in.Release("a")
	assert.True(t, d.Tick(context.Background(), in.Snapshot()).InputChanged)

	var texts []string
	for _, line := range f.hub.Console().Lines() {
		texts = append(texts, line.Text)
	}
	assert.Equal(t, []string{"draw", "draw", "input a,w", "draw", "draw", "input "}, texts)
}

func TestResetClearsFault(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("flaky", `
n = 0
function on_draw()
  n = n + 1
  if n == 1 then error("first tick") end
end
`)
	require.NoError(t, err)

	d := NewDispatcher(f.host)
	assert.Len(t, d.Tick(context.Background(), input.NewSnapshot()).Faults, 1)

	c, _ := f.host.Context("flaky")
	assert.ErrorContains(t, c.Fault(), "first tick")
	f.host.Reset()
	assert.Equal(t, Idle, c.State())
	assert.NoError(t, c.Fault())

	report := d.Tick(context.Background(), input.NewSnapshot())
	assert.Empty(t, report.Faults)
	assert.Equal(t, 1, report.Callbacks)
}

func TestReloadReplacesFaultedContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Load("s", `function on_draw() error("x") end`)
	require.NoError(t, err)
	d := NewDispatcher(f.host)
	d.Tick(context.Background(), input.NewSnapshot())

	c, err := f.host.Load("s", `function on_draw() end`)
	require.NoError(t, err)
	assert.Equal(t, Idle, c.State())
	assert.Empty(t, d.Tick(context.Background(), input.NewSnapshot()).Faults)
}

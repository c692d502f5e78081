package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/drawer"
)

func fwd(d float64) command.Command {
	return command.Command{Op: command.OpForward, ID: "t", Args: []float64{d}}
}

func rot(d float64) command.Command {
	return command.Command{Op: command.OpRotate, ID: "t", Args: []float64{d}}
}

func TestCompactSquare(t *testing.T) {
	steps := []command.Command{{Op: command.OpNew, ID: "t"}}
	for i := 0; i < 4; i++ {
		steps = append(steps, fwd(10), rot(90))
	}
	got := Compact(steps)
	require.Len(t, got, 2)
	assert.Equal(t, command.OpLoop, got[1].Op)
	assert.Equal(t, 4, got[1].Count)
	assert.Equal(t, []command.Command{fwd(10), rot(90)}, got[1].Body)
	assert.Equal(t, command.Expand(steps), command.Expand(got))
}

func TestCompactLeavesSingles(t *testing.T) {
	steps := []command.Command{fwd(1), fwd(2), fwd(3)}
	assert.Equal(t, steps, Compact(steps))

	steps = []command.Command{fwd(1), fwd(1), fwd(1)}
	got := Compact(steps)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Count)
	assert.Empty(t, Compact(nil))
}

func TestRecordOnlyWhileRecording(t *testing.T) {
	b := NewBuffer(nil)
	b.Record(fwd(1))
	_, err := b.StopRecording("x")
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, b.StartRecording())
	assert.Equal(t, Recording, b.State())
	b.Record(command.Command{Op: command.OpNew, ID: "t"})
	b.Record(fwd(5))
	inst, err := b.StopRecording("walk")
	require.NoError(t, err)
	assert.Equal(t, Idle, b.State())
	assert.Equal(t, "walk", inst.Name)
	assert.False(t, inst.CreatedAt.IsZero())
	assert.Equal(t, "new(\"t\")\nforward(\"t\", 5)", inst.Source())
}

func TestPlaybackOneStepPerAdvance(t *testing.T) {
	reg := drawer.NewRegistry()
	exec := command.NewExecutor(reg, nil)
	b := NewBuffer(nil)
	exec.SetRecorder(b)

	inst := Instance{Name: "square", Steps: []command.Command{
		{Op: command.OpNew, ID: "t"},
		{Op: command.OpLoop, Count: 4, Body: []command.Command{fwd(10), rot(90)}},
	}}
	require.NoError(t, b.StartPlayback(inst))
	assert.ErrorIs(t, b.StartRecording(), ErrBusy)

	ok, err := b.Advance(exec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, reg.Exists("t"))

	ok, err = b.Advance(exec)
	require.NoError(t, err)
	assert.True(t, ok)
	s, err := reg.Snapshot("t")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 1)

	for ok {
		ok, err = b.Advance(exec)
		require.NoError(t, err)
	}
	assert.Equal(t, Idle, b.State())
	s, err = reg.Snapshot("t")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 4)
}

func TestPlaybackStopsOnFailure(t *testing.T) {
	exec := command.NewExecutor(drawer.NewRegistry(), nil)
	b := NewBuffer(nil)
	require.NoError(t, b.StartPlayback(Instance{Name: "bad", Steps: []command.Command{fwd(1), fwd(2)}}))

	ok, err := b.Advance(exec)
	assert.False(t, ok)
	assert.ErrorIs(t, err, drawer.ErrNotFound)
	assert.Equal(t, Idle, b.State())
}

func TestStartPlaybackRejectsInvalid(t *testing.T) {
	b := NewBuffer(nil)
	err := b.StartPlayback(Instance{Name: "x", Steps: []command.Command{{Op: command.OpForward, ID: "t"}}})
	assert.Error(t, err)
	assert.Equal(t, Idle, b.State())
}

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/notify"
)

type recordingSink struct {
	printed []string
	notes   []notify.Category
}

func (s *recordingSink) Notify(c notify.Category, _ string) { s.notes = append(s.notes, c) }
func (s *recordingSink) Print(m string)                     { s.printed = append(s.printed, m) }

type sliceRecorder []Command

func (r *sliceRecorder) Record(c Command) { *r = append(*r, c) }

func TestString(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{Command{Op: OpNew, ID: "t"}, `new("t")`},
		{Command{Op: OpForward, ID: "t", Args: []float64{12.5}}, `forward("t", 12.5)`},
		{Command{Op: OpColor, ID: "t", Args: []float64{1, 0, 0.5, 1}}, `color("t", 1, 0, 0.5, 1)`},
		{Command{Op: OpWipe}, `wipe()`},
		{Command{Op: OpPrint, Text: `say "hi"`}, `print("say \"hi\"")`},
		{Command{Op: OpNotify, Kind: 2, Text: "ok"}, `notification(2, "ok")`},
		{Command{Op: OpSetAngle, ID: "t", Args: []float64{90}}, `set_angle("t", 90)`},
		{
			Command{Op: OpLoop, Count: 4, Body: []Command{
				{Op: OpForward, ID: "t", Args: []float64{10}},
				{Op: OpRotate, ID: "t", Args: []float64{90}},
			}},
			"for i=1,4 do forward(\"t\", 10)\nrotate(\"t\", 90) end",
		},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cmd.String())
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Command{Op: OpForward, ID: "t", Args: []float64{1}}.Validate())
	assert.Error(t, Command{Op: OpForward, ID: "t"}.Validate())
	assert.Error(t, Command{Op: OpCenter}.Validate())
	assert.Error(t, Command{Op: Op(200)}.Validate())
	assert.Error(t, Command{Op: OpLoop, Count: 2, Body: []Command{{Op: OpRotate, ID: "t"}}}.Validate())
	assert.NoError(t, Command{Op: OpWipe}.Validate())
}

func TestSteps(t *testing.T) {
	cmds := []Command{
		{Op: OpNew, ID: "t"},
		{Op: OpLoop, Count: 3, Body: []Command{{Op: OpFill, ID: "t"}, {Op: OpWipe}}},
	}
	assert.Equal(t, 7, Steps(cmds))
}

func TestApply(t *testing.T) {
	reg := drawer.NewRegistry()
	sink := &recordingSink{}
	exec := NewExecutor(reg, sink)
	var rec sliceRecorder
	exec.SetRecorder(&rec)

	cmds := []Command{
		{Op: OpNew, ID: "t"},
		{Op: OpColor, ID: "t", Args: []float64{0, 1, 0, 1}},
		{Op: OpLoop, Count: 4, Body: []Command{
			{Op: OpForward, ID: "t", Args: []float64{10}},
			{Op: OpRotate, ID: "t", Args: []float64{90}},
		}},
		{Op: OpPrint, Text: "done"},
		{Op: OpNotify, Kind: 4, Text: "warn"},
	}
	require.NoError(t, exec.ApplyAll(cmds))

	s, err := reg.Snapshot("t")
	require.NoError(t, err)
	assert.Len(t, s.Segments, 4)
	assert.Equal(t, drawer.Point{}, s.Position)
	assert.Equal(t, drawer.Color{G: 1, A: 1}, s.Segments[0].Color)
	assert.Equal(t, []string{"done"}, sink.printed)
	assert.Equal(t, []notify.Category{notify.Warning}, sink.notes)
	assert.Len(t, rec, len(cmds))
}

func TestApplyMissingDrawer(t *testing.T) {
	exec := NewExecutor(drawer.NewRegistry(), nil)
	var rec sliceRecorder
	exec.SetRecorder(&rec)

	err := exec.Apply(Command{Op: OpForward, ID: "ghost", Args: []float64{1}})
	assert.ErrorIs(t, err, drawer.ErrNotFound)
	assert.Empty(t, rec, "failed commands are not recorded")

	err = exec.ApplyAll([]Command{{Op: OpNew, ID: "a"}, {Op: OpNew, ID: "a"}})
	assert.ErrorIs(t, err, drawer.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "step 2")
}

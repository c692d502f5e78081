package command

import (
	"fmt"

	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/notify"
)

// Recorder observes applied commands, for demo recording.
type Recorder interface {
	Record(c Command)
}

// Executor applies commands to a registry.
type Executor struct {
	registry *drawer.Registry
	sink     notify.Sink
	recorder Recorder
}

// NewExecutor creates an executor over registry that sends output to sink.
func NewExecutor(registry *drawer.Registry, sink notify.Sink) *Executor {
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Executor{
		registry: registry,
		sink:     sink,
	}
}

// SetRecorder installs the recorder that sees every successfully applied
// command. Pass nil to remove it.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// Recording reports whether the recorder is currently capturing commands.
func (e *Executor) Recording() bool {
	r, ok := e.recorder.(interface{ Recording() bool })
	return ok && r.Recording()
}

// Registry returns the registry commands are applied to.
func (e *Executor) Registry() *drawer.Registry {
	return e.registry
}

// Sink returns the output sink.
func (e *Executor) Sink() notify.Sink {
	return e.sink
}

// Apply validates and performs one command.
func (e *Executor) Apply(c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := e.apply(c); err != nil {
		return err
	}
	if e.recorder != nil {
		e.recorder.Record(c)
	}
	return nil
}

// ApplyAll performs commands in order, stopping at the first failure.
func (e *Executor) ApplyAll(cmds []Command) error {
	for i, c := range cmds {
		if err := e.Apply(c); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, c.Op, err)
		}
	}
	return nil
}

func (e *Executor) apply(c Command) error {
	switch c.Op {
	case OpNew:
		return e.registry.Create(c.ID)
	case OpRemove:
		return e.registry.Remove(c.ID)
	case OpWipe:
		e.registry.WipeAll()
		return nil
	case OpPrint:
		e.sink.Print(c.Text)
		return nil
	case OpNotify:
		e.sink.Notify(notify.CategoryOf(c.Kind), c.Text)
		return nil
	case OpLoop:
		for i := 0; i < c.Count; i++ {
			for _, step := range c.Body {
				if err := e.apply(step); err != nil {
					return err
				}
			}
		}
		return nil
	}

	d, err := e.registry.Get(c.ID)
	if err != nil {
		return err
	}
	switch c.Op {
	case OpCenter:
		return d.Center()
	case OpForward:
		return d.Forward(c.Args[0])
	case OpRotate:
		return d.Rotate(c.Args[0])
	case OpSetAngle:
		return d.SetAngle(c.Args[0])
	case OpPointTo:
		return d.PointTo(c.Args[0], c.Args[1])
	case OpColor:
		return d.SetColor(c.Args[0], c.Args[1], c.Args[2], c.Args[3])
	case OpEnable:
		return d.Enable()
	case OpDisable:
		return d.Disable()
	case OpRectangle:
		return d.Rectangle(c.Args[0], c.Args[1])
	case OpFill:
		_, err := d.Fill()
		return err
	}
	return fmt.Errorf("unknown command %s", c.Op)
}

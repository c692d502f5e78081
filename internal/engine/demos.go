package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/project"
)

// ErrDemoNotFound is returned for an unknown demo name.
var ErrDemoNotFound = errors.New("demo not found")

// StartRecording begins recording every command scripts perform.
func (e *Engine) StartRecording() error {
	return e.demos.StartRecording()
}

// StopRecording ends the recording and keeps it as a demo called name,
// replacing any demo of the same name.
func (e *Engine) StopRecording(name string) (demo.Instance, error) {
	if strings.TrimSpace(name) == "" {
		return demo.Instance{}, fmt.Errorf("%w: empty demo name", ErrInvalidName)
	}
	inst, err := e.demos.StopRecording(name)
	if err != nil {
		return demo.Instance{}, err
	}
	e.mu.Lock()
	e.saved[name] = inst
	e.mu.Unlock()
	return inst, nil
}

// Play starts playing a saved demo, one step per tick.
func (e *Engine) Play(name string) error {
	inst, err := e.Demo(name)
	if err != nil {
		return err
	}
	return e.demos.StartPlayback(inst)
}

// StopDemo abandons any recording or playback.
func (e *Engine) StopDemo() {
	e.demos.Clear()
}

// DemoState reports what the demo buffer is doing.
func (e *Engine) DemoState() demo.State {
	return e.demos.State()
}

// Demos lists the saved demos in name order.
func (e *Engine) Demos() []demo.Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.demoList()
}

// Demo returns one saved demo.
func (e *Engine) Demo(name string) (demo.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.saved[name]
	if !ok {
		return demo.Instance{}, fmt.Errorf("%w: %q", ErrDemoNotFound, name)
	}
	return inst, nil
}

// DeleteDemo forgets a saved demo.
func (e *Engine) DeleteDemo(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.saved[name]; !ok {
		return fmt.Errorf("%w: %q", ErrDemoNotFound, name)
	}
	delete(e.saved, name)
	return nil
}

// ExportDemo writes a saved demo to a .demo file and returns the path used.
func (e *Engine) ExportDemo(name, path string) (string, error) {
	inst, err := e.Demo(name)
	if err != nil {
		return "", err
	}
	path = project.WithExt(path, project.DemoExt)
	if err := project.WriteDemoFile(path, inst); err != nil {
		return "", err
	}
	return path, nil
}

// ImportDemo reads a .demo file and keeps it under its recorded name.
func (e *Engine) ImportDemo(path string) (demo.Instance, error) {
	inst, err := project.ReadDemoFile(path)
	if err != nil {
		return demo.Instance{}, err
	}
	if inst.Name == "" {
		return demo.Instance{}, fmt.Errorf("%w: %s has no demo name", project.ErrFormat, path)
	}
	e.mu.Lock()
	e.saved[inst.Name] = inst
	e.mu.Unlock()
	return inst, nil
}

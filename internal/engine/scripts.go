package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/zot/turtle/internal/notify"
	"github.com/zot/turtle/internal/project"
)

var (
	ErrScriptNotFound = errors.New("script not found")
	ErrScriptDeleted  = errors.New("script is in the rubbish bin")
	ErrInvalidName    = errors.New("invalid script name")
)

type scriptEntry struct {
	source  string
	deleted bool
}

// Scripts lists every script, deleted ones included, in name order.
func (e *Engine) Scripts() []project.Script {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scriptList()
}

func (e *Engine) scriptList() []project.Script {
	out := make([]project.Script, 0, len(e.scripts))
	for name, s := range e.scripts {
		out = append(out, project.Script{Name: name, Source: s.source, Deleted: s.deleted})
	}
	slices.SortFunc(out, func(a, b project.Script) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Script returns one script.
func (e *Engine) Script(name string) (project.Script, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scripts[name]
	if !ok {
		return project.Script{}, fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	return project.Script{Name: name, Source: s.source, Deleted: s.deleted}, nil
}

// SetScript stores source under name without running it. Saving a deleted
// script takes it out of the rubbish bin.
func (e *Engine) SetScript(name, source string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[name] = &scriptEntry{source: source}
	return nil
}

// RunScript loads the stored script into a fresh context, replacing the
// running one on success. Failures are reported to the console.
func (e *Engine) RunScript(name string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.runScript(name)
}

func (e *Engine) runScript(name string) error {
	s, err := e.Script(name)
	if err != nil {
		return err
	}
	if s.Deleted {
		return fmt.Errorf("%w: %q", ErrScriptDeleted, name)
	}
	if _, err := e.host.Load(name, s.Source); err != nil {
		e.hub.Notify(notify.Error, err.Error())
		return err
	}
	e.Log(2, "Engine: running %s", name)
	return nil
}

// LoadScript stores and runs a script.
func (e *Engine) LoadScript(name, source string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if err := e.SetScript(name, source); err != nil {
		return err
	}
	return e.runScript(name)
}

// DeleteScript moves a script to the rubbish bin and stops it. Unknown names
// are ignored.
func (e *Engine) DeleteScript(name string) {
	if err := e.TrashScript(name); err != nil {
		e.Log(2, "Engine: delete %s: %v", name, err)
	}
}

// TrashScript moves a script to the rubbish bin and stops it.
func (e *Engine) TrashScript(name string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.mu.Lock()
	s, ok := e.scripts[name]
	if ok {
		s.deleted = true
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	e.host.Unload(name)
	return nil
}

// RestoreScript takes a script out of the rubbish bin. It does not run it.
func (e *Engine) RestoreScript(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scripts[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	s.deleted = false
	return nil
}

// PurgeScript removes a script for good.
func (e *Engine) PurgeScript(name string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.mu.Lock()
	_, ok := e.scripts[name]
	delete(e.scripts, name)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrScriptNotFound, name)
	}
	e.host.Unload(name)
	return nil
}

// EmptyBin purges every deleted script and returns their names.
func (e *Engine) EmptyBin() []string {
	e.mu.Lock()
	var names []string
	for name, s := range e.scripts {
		if s.deleted {
			names = append(names, name)
			delete(e.scripts, name)
		}
	}
	e.mu.Unlock()
	slices.Sort(names)
	return names
}

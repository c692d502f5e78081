package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/project"
	"github.com/zot/turtle/internal/storage"
)

// Snapshot captures the project: drawers, scripts and saved demos.
func (e *Engine) Snapshot() *project.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &project.Record{
		Version: project.FormatVersion,
		Drawers: e.registry.Snapshots(),
		Scripts: e.scriptList(),
		Demos:   e.demoList(),
	}
}

// Restore replaces the project with rec. Nothing changes if the drawer set
// is invalid. Running scripts are stopped and restored scripts are not run.
func (e *Engine) Restore(rec *project.Record) error {
	scripts := make(map[string]*scriptEntry, len(rec.Scripts))
	for _, s := range rec.Scripts {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: empty script name", project.ErrFormat)
		}
		if _, dup := scripts[s.Name]; dup {
			return fmt.Errorf("%w: duplicate script %q", project.ErrFormat, s.Name)
		}
		scripts[s.Name] = &scriptEntry{source: s.Source, deleted: s.Deleted}
	}
	demos := make(map[string]demo.Instance, len(rec.Demos))
	for _, d := range rec.Demos {
		demos[d.Name] = d
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if err := e.registry.Replace(rec.Drawers); err != nil {
		return err
	}
	e.demos.Clear()
	for _, c := range e.host.Contexts() {
		e.host.Unload(c.Name())
	}

	e.mu.Lock()
	e.scripts = scripts
	e.saved = demos
	e.mu.Unlock()
	e.Log(1, "Engine: restored %d drawers, %d scripts, %d demos", len(rec.Drawers), len(scripts), len(demos))
	return nil
}

// Save stores the project in the storage backend under name.
func (e *Engine) Save(name string) error {
	if err := storage.SaveRecord(e.store, name, e.Snapshot()); err != nil {
		return fmt.Errorf("save %q: %w", name, err)
	}
	return nil
}

// Load replaces the project with the one stored under name.
func (e *Engine) Load(name string) error {
	rec, err := storage.LoadRecord(e.store, name)
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	return e.Restore(rec)
}

// Projects lists the stored project names.
func (e *Engine) Projects() ([]string, error) {
	return e.store.List()
}

// SaveFile writes the project to a .save file and returns the path used.
func (e *Engine) SaveFile(path string) (string, error) {
	path = project.WithExt(path, project.Ext)
	if err := project.WriteFile(path, e.Snapshot()); err != nil {
		return "", err
	}
	return path, nil
}

// OpenFile replaces the project with a .save file's contents.
func (e *Engine) OpenFile(path string) error {
	rec, err := project.ReadFile(path)
	if err != nil {
		return err
	}
	return e.Restore(rec)
}

func (e *Engine) demoList() []demo.Instance {
	out := make([]demo.Instance, 0, len(e.saved))
	for _, d := range e.saved {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b demo.Instance) int { return strings.Compare(a.Name, b.Name) })
	return out
}

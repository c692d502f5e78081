package drawer

import (
	"fmt"
	"slices"
	"sync"
)

// Registry owns the set of live drawers, keyed by ID.
// Membership is guarded by an RWMutex; each drawer carries its own lock, so
// mutations of different drawers do not block each other.
type Registry struct {
	drawers map[string]*Drawer
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		drawers: make(map[string]*Drawer),
	}
}

// Create adds a new drawer at the origin.
func (r *Registry) Create(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.drawers[id]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, id)
	}
	r.drawers[id] = newDrawer(id)
	return nil
}

// Exists reports whether a drawer with the given ID is live.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drawers[id]
	return ok
}

// Remove deletes a drawer and its drawn path.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	d, ok := r.drawers[id]
	if ok {
		delete(r.drawers, id)
	}
	r.mu.Unlock()

	if !ok {
		return notFound(id)
	}
	d.markRemoved()
	return nil
}

// Get returns the live drawer for id. All drawer mutation goes through here.
func (r *Registry) Get(id string) (*Drawer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drawers[id]
	if !ok {
		return nil, notFound(id)
	}
	return d, nil
}

// List returns drawer IDs in lexicographic order.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.drawers))
	for id := range r.drawers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of live drawers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drawers)
}

// ordered returns the live drawers in List order.
func (r *Registry) ordered() []*Drawer {
	r.mu.RLock()
	out := make([]*Drawer, 0, len(r.drawers))
	for _, d := range r.drawers {
		out = append(out, d)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Drawer) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

// WipeAll clears the drawn path of every drawer.
func (r *Registry) WipeAll() {
	for _, d := range r.ordered() {
		d.wipe()
	}
}

// Clear removes every drawer.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.drawers
	r.drawers = make(map[string]*Drawer)
	r.mu.Unlock()

	for _, d := range old {
		d.markRemoved()
	}
}

// Snapshot returns a copy of one drawer.
func (r *Registry) Snapshot(id string) (State, error) {
	d, err := r.Get(id)
	if err != nil {
		return State{}, err
	}
	return d.State()
}

// Snapshots returns copies of every drawer in List order.
// Drawers removed while the copy is taken are skipped.
func (r *Registry) Snapshots() []State {
	drawers := r.ordered()
	states := make([]State, 0, len(drawers))
	for _, d := range drawers {
		if s, err := d.State(); err == nil {
			states = append(states, s)
		}
	}
	return states
}

// Segments returns every drawn segment, grouped by drawer in List order.
func (r *Registry) Segments() []Segment {
	var segs []Segment
	for _, s := range r.Snapshots() {
		segs = append(segs, s.Segments...)
	}
	return segs
}

// Polygons returns every filled polygon, grouped by drawer in List order.
func (r *Registry) Polygons() []Polygon {
	var polys []Polygon
	for _, s := range r.Snapshots() {
		polys = append(polys, s.Polygons...)
	}
	return polys
}

// Replace swaps the whole drawer set for the given states in one step.
// It fails without changing anything if the states hold an empty or
// duplicate ID.
func (r *Registry) Replace(states []State) error {
	next := make(map[string]*Drawer, len(states))
	for _, s := range states {
		if s.ID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidID)
		}
		if _, dup := next[s.ID]; dup {
			return fmt.Errorf("%w: %q", ErrAlreadyExists, s.ID)
		}
		next[s.ID] = fromState(s)
	}

	r.mu.Lock()
	old := r.drawers
	r.drawers = next
	r.mu.Unlock()

	for _, d := range old {
		d.markRemoved()
	}
	return nil
}

// Package input tracks pressed keys and produces per-tick snapshots.
package input

import (
	"maps"
	"slices"
	"sync"
)

// Snapshot is the set of keys held down at one tick. It is a value: holders
// never see later presses.
type Snapshot struct {
	keys map[string]struct{}
}

// NewSnapshot builds a snapshot from key names. Empty names are ignored.
func NewSnapshot(keys ...string) Snapshot {
	s := Snapshot{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k != "" {
			s.keys[k] = struct{}{}
		}
	}
	return s
}

// Keys returns the pressed keys in sorted order.
func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s.keys))
}

// Len returns the number of pressed keys.
func (s Snapshot) Len() int {
	return len(s.keys)
}

// Pressed reports whether key is held.
func (s Snapshot) Pressed(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Equal reports whether two snapshots hold the same keys.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for k := range s.keys {
		if _, ok := other.keys[k]; !ok {
			return false
		}
	}
	return true
}

// State accumulates press and release events between ticks.
type State struct {
	keys map[string]struct{}
	mu   sync.Mutex
}

// NewState creates an empty key state.
func NewState() *State {
	return &State{keys: make(map[string]struct{})}
}

// Press marks key as held.
func (st *State) Press(key string) {
	if key == "" {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.keys[key] = struct{}{}
}

// Release marks key as released.
func (st *State) Release(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.keys, key)
}

// Set replaces the held set.
func (st *State) Set(keys []string) {
	next := NewSnapshot(keys...)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.keys = next.keys
}

// Snapshot copies the held set.
func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{keys: maps.Clone(st.keys)}
}

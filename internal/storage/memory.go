package storage

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory storage backend.
type MemoryStorage struct {
	projects map[string]*ProjectData
	mu       sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		projects: make(map[string]*ProjectData),
	}
}

// Store persists a project to memory.
func (m *MemoryStorage) Store(p *ProjectData) error {
	if p.Name == "" {
		return fmt.Errorf("project name is empty")
	}
	cp := copyProject(p)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.Name] = cp
	return nil
}

// Load retrieves a project from memory.
func (m *MemoryStorage) Load(name string) (*ProjectData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[name]
	if !ok {
		return nil, notFound(name)
	}
	return copyProject(p), nil
}

// Delete removes a project from memory.
func (m *MemoryStorage) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, name)
	return nil
}

// List returns the stored project names.
func (m *MemoryStorage) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.projects)), nil
}

// Exists checks if a project exists.
func (m *MemoryStorage) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.projects[name]
	return ok
}

// Clear removes all data.
func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = make(map[string]*ProjectData)
	return nil
}

// BeginTransaction starts an atomic operation.
func (m *MemoryStorage) BeginTransaction() (Transaction, error) {
	return &memoryTransaction{storage: m}, nil
}

// Close closes the storage backend.
func (m *MemoryStorage) Close() error {
	return nil
}

// Count returns the number of stored projects.
func (m *MemoryStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.projects)
}

func copyProject(p *ProjectData) *ProjectData {
	return &ProjectData{
		Name:      p.Name,
		Data:      slices.Clone(p.Data),
		UpdatedAt: p.UpdatedAt,
	}
}

// memoryTransaction implements Transaction for MemoryStorage.
type memoryTransaction struct {
	storage   *MemoryStorage
	stores    []*ProjectData
	deletes   []string
	committed bool
}

// Store queues a project to be stored.
func (tx *memoryTransaction) Store(p *ProjectData) error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}
	if p.Name == "" {
		return fmt.Errorf("project name is empty")
	}
	tx.stores = append(tx.stores, copyProject(p))
	return nil
}

// Delete queues a project to be deleted.
func (tx *memoryTransaction) Delete(name string) error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}
	tx.deletes = append(tx.deletes, name)
	return nil
}

// Commit applies all queued operations under one lock.
func (tx *memoryTransaction) Commit() error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}
	tx.committed = true

	m := tx.storage
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, p := range tx.stores {
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		m.projects[p.Name] = p
	}
	for _, name := range tx.deletes {
		delete(m.projects, name)
	}
	return nil
}

// Rollback discards all queued operations.
func (tx *memoryTransaction) Rollback() error {
	tx.committed = true
	tx.stores = nil
	tx.deletes = nil
	return nil
}

// Package storage implements storage backends for saved projects.
//
// A backend maps a project name to the compressed project record. The engine
// uses it for named saves and for the autosave written on shutdown.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/zot/turtle/internal/config"
)

// ErrNotFound is returned when loading a project that was never stored.
var ErrNotFound = errors.New("project not found")

func notFound(name string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ProjectData is one stored project.
type ProjectData struct {
	Name      string    `json:"name"`
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Backend defines the interface for storage backends.
type Backend interface {
	// Store persists a project, replacing any previous one with the same name.
	Store(p *ProjectData) error

	// Load retrieves a project from storage.
	Load(name string) (*ProjectData, error)

	// Delete removes a project from storage.
	Delete(name string) error

	// List returns the stored project names in sorted order.
	List() ([]string, error)

	// Exists checks if a project exists.
	Exists(name string) bool

	// Clear removes all data.
	Clear() error

	// BeginTransaction starts an atomic operation.
	BeginTransaction() (Transaction, error)

	// Close closes the storage backend.
	Close() error
}

// Transaction represents an atomic storage operation.
type Transaction interface {
	// Store persists a project within the transaction.
	Store(p *ProjectData) error

	// Delete removes a project within the transaction.
	Delete(name string) error

	// Commit completes the transaction.
	Commit() error

	// Rollback cancels the transaction.
	Rollback() error
}

// Open creates the backend selected by cfg.Storage.Type.
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.Storage.Path)
	case "postgresql", "postgres":
		if cfg.Storage.URL == "" {
			return nil, fmt.Errorf("storage type %q needs storage.url", cfg.Storage.Type)
		}
		return NewPostgresStorage(cfg.Storage.URL)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
}

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/project"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Backend{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func TestBackendBasics(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Load("missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.False(t, b.Exists("missing"))

			require.NoError(t, b.Store(&ProjectData{Name: "b", Data: []byte{1, 2}}))
			require.NoError(t, b.Store(&ProjectData{Name: "a", Data: []byte{3}}))
			require.NoError(t, b.Store(&ProjectData{Name: "b", Data: []byte{4, 5, 6}}))
			assert.Error(t, b.Store(&ProjectData{Data: []byte{1}}))

			p, err := b.Load("b")
			require.NoError(t, err)
			assert.Equal(t, []byte{4, 5, 6}, p.Data)
			assert.False(t, p.UpdatedAt.IsZero())

			names, err := b.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, names)

			require.NoError(t, b.Delete("a"))
			require.NoError(t, b.Delete("a"))
			assert.False(t, b.Exists("a"))
			assert.True(t, b.Exists("b"))

			require.NoError(t, b.Clear())
			names, err = b.List()
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestTransactions(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Store(&ProjectData{Name: "old", Data: []byte{1}}))

			tx, err := b.BeginTransaction()
			require.NoError(t, err)
			require.NoError(t, tx.Store(&ProjectData{Name: "new", Data: []byte{2}}))
			require.NoError(t, tx.Delete("old"))
			require.NoError(t, tx.Rollback())
			assert.True(t, b.Exists("old"))
			assert.False(t, b.Exists("new"))

			tx, err = b.BeginTransaction()
			require.NoError(t, err)
			require.NoError(t, tx.Store(&ProjectData{Name: "new", Data: []byte{2}}))
			require.NoError(t, tx.Delete("old"))
			require.NoError(t, tx.Commit())
			assert.False(t, b.Exists("old"))
			assert.True(t, b.Exists("new"))
		})
	}
}

func TestRecords(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := &project.Record{
				Drawers: []drawer.State{{ID: "t", Color: drawer.White, Enabled: true, Heading: 45}},
				Scripts: []project.Script{{Name: "main", Source: "print(1)"}},
			}
			require.NoError(t, SaveRecord(b, "autosave", rec))

			got, err := LoadRecord(b, "autosave")
			require.NoError(t, err)
			assert.Equal(t, rec.Drawers, got.Drawers)
			assert.Equal(t, rec.Scripts, got.Scripts)

			require.NoError(t, b.Store(&ProjectData{Name: "junk", Data: []byte("junk")}))
			_, err = LoadRecord(b, "junk")
			assert.ErrorIs(t, err, project.ErrFormat)
		})
	}
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	b, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, b)

	cfg.Storage.Type = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "x.db")
	b, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, b)
	b.Close()

	cfg.Storage.Type = "postgresql"
	cfg.Storage.URL = ""
	_, err = Open(cfg)
	assert.Error(t, err)

	cfg.Storage.Type = "floppy"
	_, err = Open(cfg)
	assert.Error(t, err)
}

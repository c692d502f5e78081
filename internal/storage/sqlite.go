package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage is a SQLite storage backend.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStorage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// init creates the necessary tables.
func (s *SQLiteStorage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Store persists a project to SQLite.
func (s *SQLiteStorage) Store(p *ProjectData) error {
	return sqliteStore(s.db, p)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func sqliteStore(db execer, p *ProjectData) error {
	if p.Name == "" {
		return errors.New("project name is empty")
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO projects (name, data, updated_at)
		VALUES (?, ?, ?)
	`, p.Name, p.Data, updated.UnixNano())
	return err
}

// Load retrieves a project from SQLite.
func (s *SQLiteStorage) Load(name string) (*ProjectData, error) {
	var data []byte
	var updated int64

	err := s.db.QueryRow(`
		SELECT data, updated_at FROM projects WHERE name = ?
	`, name).Scan(&data, &updated)

	if err == sql.ErrNoRows {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}

	return &ProjectData{
		Name:      name,
		Data:      data,
		UpdatedAt: time.Unix(0, updated),
	}, nil
}

// Delete removes a project from SQLite.
func (s *SQLiteStorage) Delete(name string) error {
	_, err := s.db.Exec("DELETE FROM projects WHERE name = ?", name)
	return err
}

// List returns the stored project names.
func (s *SQLiteStorage) List() ([]string, error) {
	return listNames(s.db, "SELECT name FROM projects ORDER BY name")
}

func listNames(db *sql.DB, query string) ([]string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Exists checks if a project exists.
func (s *SQLiteStorage) Exists(name string) bool {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM projects WHERE name = ?", name).Scan(&count)
	return err == nil && count > 0
}

// Clear removes all data.
func (s *SQLiteStorage) Clear() error {
	_, err := s.db.Exec("DELETE FROM projects")
	return err
}

// BeginTransaction starts an atomic operation.
func (s *SQLiteStorage) BeginTransaction() (Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &sqliteTransaction{tx: tx}, nil
}

// Close closes the storage backend.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqliteTransaction implements Transaction for SQLite.
type sqliteTransaction struct {
	tx *sql.Tx
}

// Store persists a project within the transaction.
func (t *sqliteTransaction) Store(p *ProjectData) error {
	return sqliteStore(t.tx, p)
}

// Delete removes a project within the transaction.
func (t *sqliteTransaction) Delete(name string) error {
	_, err := t.tx.Exec("DELETE FROM projects WHERE name = ?", name)
	return err
}

// Commit completes the transaction.
func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

// Rollback cancels the transaction.
func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

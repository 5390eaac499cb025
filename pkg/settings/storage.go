// Package settings persists user-tunable shell preferences: the
// default permissions applied to newly added tool servers, history
// retention, the prune schedule and browsing defaults.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrKeyNotFound is returned when a setting has never been written.
var ErrKeyNotFound = errors.New("setting not found")

// Storage is the persistence contract for settings. Values are stored
// as JSON so new setting shapes never need schema changes.
type Storage interface {
	Get(key string, out interface{}) error
	Set(key string, value interface{}) error
	Delete(key string) error
	Close() error
}

// SQLiteStorage implements Storage over a cgo-free SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if necessary) the settings database
// at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize settings tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shell_settings (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Get unmarshals the stored value for key into out.
func (s *SQLiteStorage) Get(key string, out interface{}) error {
	var data string
	err := s.db.QueryRow(
		`SELECT value_json FROM shell_settings WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStorage) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize setting %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO shell_settings (key, value_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
		key, string(data), time.Now())
	return err
}

// Delete removes a setting, reverting it to its default.
func (s *SQLiteStorage) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM shell_settings WHERE key = ?`, key)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

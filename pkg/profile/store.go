// Package profile persists the student profile across sessions.
package profile

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/types"
)

// storageKey identifies the profile record. A single profile exists per
// database.
const storageKey = "gemikid_student_profile"

// Store is a SQLite-backed profile store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the profile database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping profile database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS profile (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create profile schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the saved profile. The second return is false when no
// profile has been saved yet.
func (s *Store) Load() (types.StudentProfile, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM profile WHERE key = ?`, storageKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StudentProfile{}, false, nil
	}
	if err != nil {
		return types.StudentProfile{}, false, fmt.Errorf("failed to load profile: %w", err)
	}

	var p types.StudentProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return types.StudentProfile{}, false, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, true, nil
}

// Save validates and persists the profile, replacing any previous one.
func (s *Store) Save(p types.StudentProfile) error {
	if !p.Complete() {
		return core.NewValidationError("profile needs both a name and a phone number")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO profile (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, storageKey, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Clear removes the saved profile.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM profile WHERE key = ?`, storageKey)
	if err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

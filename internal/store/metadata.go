package store

import (
	"database/sql"
	"errors"
)

const importKeyPrefix = "import:"

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// setMetadata upserts a key-value pair through ex, which may be the store's
// database or an open transaction.
func setMetadata(ex execer, key, value string) error {
	_, err := ex.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded when path was last
// imported, or "" if it never was.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	return s.GetMetadata(importKeyPrefix + path)
}

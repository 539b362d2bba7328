package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/edubridge/edubridge/internal/model"
)

var (
	// ErrAlreadyImported is returned when a file with the same name and content was imported before.
	ErrAlreadyImported = errors.New("file already imported")
	// ErrImportChanged is returned when a file was imported before with different content.
	// Re-importing it would duplicate problems that attempts may already reference.
	ErrImportChanged = errors.New("file changed since last import")
	// ErrInvalidImport wraps parse and validation failures in an imported file.
	ErrInvalidImport = errors.New("invalid problem file")
)

var importValidate = validator.New()

// ImportProblems parses a JSON array of problems from data, stores them in one
// transaction and records the content hash under name.
func (s *Store) ImportProblems(name string, data []byte) (int, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	stored, err := s.GetImportedFileHash(name)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", name, err)
	}
	switch {
	case stored == hash:
		return 0, ErrAlreadyImported
	case stored != "":
		return 0, ErrImportChanged
	}

	var items []model.ProblemImport
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrInvalidImport, name, err)
	}
	for i, it := range items {
		if err := importValidate.Struct(it); err != nil {
			return 0, fmt.Errorf("%w: problem %d in %s: %w", ErrInvalidImport, i+1, name, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, it := range items {
		difficulty := it.Difficulty
		if difficulty == "" {
			difficulty = model.DifficultyMedium
		}
		_, err := tx.Exec(
			`INSERT INTO problems (title, content, subject, difficulty, explanation, correct_answer)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			it.Title, it.Content, it.Subject, difficulty, it.Explanation, it.CorrectAnswer,
		)
		if err != nil {
			return 0, fmt.Errorf("insert problem from %s: %w", name, err)
		}
	}
	if err := setMetadata(tx, importKeyPrefix+name, hash); err != nil {
		return 0, fmt.Errorf("record import for %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	slog.Info("imported problems", "name", name, "count", len(items))
	return len(items), nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edubridge/edubridge/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	// Writers take the lock when their transaction begins, and readers wait
	// up to busy_timeout instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each :memory: connection is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS problems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'medium',
		explanation TEXT NOT NULL DEFAULT '',
		correct_answer TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		problem_id INTEGER NOT NULL,
		selected_answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		attempt_number INTEGER,
		time_spent INTEGER,
		completed_at DATETIME,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (problem_id) REFERENCES problems(id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, is_correct);

	CREATE TABLE IF NOT EXISTS progress_reports (
		id TEXT PRIMARY KEY,
		student_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		summary TEXT NOT NULL,
		notes_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const problemColumns = `id, title, content, subject, difficulty, explanation, correct_answer`

func scanProblem(sc interface{ Scan(...any) error }) (model.Problem, error) {
	var p model.Problem
	err := sc.Scan(&p.ID, &p.Title, &p.Content, &p.Subject, &p.Difficulty, &p.Explanation, &p.CorrectAnswer)
	return p, err
}

// GetProblem returns a problem by ID.
func (s *Store) GetProblem(ctx context.Context, id int64) (model.Problem, error) {
	p, err := scanProblem(s.db.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// ListProblemsFiltered returns problems matching the given filters.
// Empty strings mean no filtering on that field.
func (s *Store) ListProblemsFiltered(ctx context.Context, subject, difficulty string) ([]model.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE 1=1`
	var args []any
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	problems := []model.Problem{}
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// ListDistinctSubjects returns every non-empty subject in the problem bank, alphabetically.
func (s *Store) ListDistinctSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject FROM problems WHERE subject != '' ORDER BY subject`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subjects := []string{}
	for rows.Next() {
		var subj string
		if err := rows.Scan(&subj); err != nil {
			return nil, err
		}
		subjects = append(subjects, subj)
	}
	return subjects, rows.Err()
}

// DeleteProblem removes a problem. Attempts referencing it are kept.
func (s *Store) DeleteProblem(id int64) error {
	res, err := s.db.Exec(`DELETE FROM problems WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProblemCount returns the number of problems in the database.
func (s *Store) ProblemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM problems`).Scan(&count)
	return count, err
}

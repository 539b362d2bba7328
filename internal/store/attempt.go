package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edubridge/edubridge/internal/model"
)

// CheckAnswer reports whether answer matches the problem's correct answer,
// ignoring surrounding whitespace and letter case.
func CheckAnswer(p model.Problem, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(p.CorrectAnswer), strings.TrimSpace(answer))
}

// RecordAttempt checks answer against the problem and stores it as the
// user's next numbered attempt at that problem.
func (s *Store) RecordAttempt(ctx context.Context, userID, problemID int64, answer string, timeSpent *int) (model.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Attempt{}, err
	}
	defer tx.Rollback()

	p, err := scanProblem(tx.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ?`, problemID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, ErrNotFound
	}
	if err != nil {
		return model.Attempt{}, fmt.Errorf("get problem %d: %w", problemID, err)
	}

	var prev int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = ? AND problem_id = ?`, userID, problemID,
	).Scan(&prev)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("count attempts: %w", err)
	}

	now := time.Now()
	a := model.Attempt{
		UserID:         userID,
		ProblemID:      problemID,
		SelectedAnswer: answer,
		IsCorrect:      CheckAnswer(p, answer),
		AttemptNumber:  prev + 1,
		TimeSpent:      timeSpent,
		CompletedAt:    &now,
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (user_id, problem_id, selected_answer, is_correct, attempt_number, time_spent, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ProblemID, a.SelectedAnswer, a.IsCorrect, a.AttemptNumber, a.TimeSpent, a.CompletedAt,
	)
	if err != nil {
		return model.Attempt{}, err
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return model.Attempt{}, err
	}
	return a, tx.Commit()
}

// ListAttempts returns all of a user's attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, userID int64) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, problem_id, selected_answer, is_correct, attempt_number, time_spent, completed_at
		 FROM attempts WHERE user_id = ? ORDER BY completed_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attempts := []model.Attempt{}
	for rows.Next() {
		var (
			a         model.Attempt
			number    sql.NullInt64
			timeSpent sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProblemID, &a.SelectedAnswer, &a.IsCorrect,
			&number, &timeSpent, &a.CompletedAt); err != nil {
			return nil, err
		}
		a.AttemptNumber = int(number.Int64)
		a.TimeSpent = nullIntPtr(timeSpent)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// FetchIncorrectAttempts returns the user's incorrect attempts, most recently
// completed first, each joined with its problem. Problem is nil for attempts
// whose problem row is gone.
func (s *Store) FetchIncorrectAttempts(ctx context.Context, userID int64) ([]model.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.problem_id, a.selected_answer, a.is_correct, a.completed_at, a.attempt_number, a.time_spent,
		        p.id, p.title, p.content, p.subject, p.difficulty, p.explanation, p.correct_answer
		 FROM attempts a
		 LEFT JOIN problems p ON p.id = a.problem_id
		 WHERE a.user_id = ? AND a.is_correct = 0
		 ORDER BY a.completed_at DESC, a.id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query incorrect attempts: %w", err)
	}
	defer rows.Close()

	records := []model.AttemptRecord{}
	for rows.Next() {
		var (
			rec                                 model.AttemptRecord
			number, timeSpent, pID              sql.NullInt64
			title, content, subject, difficulty sql.NullString
			explanation, correctAnswer          sql.NullString
		)
		if err := rows.Scan(&rec.ProblemID, &rec.SelectedAnswer, &rec.IsCorrect, &rec.CompletedAt, &number, &timeSpent,
			&pID, &title, &content, &subject, &difficulty, &explanation, &correctAnswer); err != nil {
			return nil, fmt.Errorf("scan incorrect attempt: %w", err)
		}
		rec.AttemptNumber = nullIntPtr(number)
		rec.TimeSpent = nullIntPtr(timeSpent)
		if pID.Valid {
			rec.Problem = &model.ProblemRef{
				ID:            pID.Int64,
				Title:         title.String,
				Content:       content.String,
				Subject:       subject.String,
				Difficulty:    model.Difficulty(difficulty.String),
				Explanation:   explanation.String,
				CorrectAnswer: correctAnswer.String,
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FetchResolvedProblemIDs returns the problems the user answered incorrectly
// and then answered correctly on a later attempt.
func (s *Store) FetchResolvedProblemIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT w.problem_id
		 FROM attempts w
		 JOIN attempts c ON c.user_id = w.user_id AND c.problem_id = w.problem_id
		 WHERE w.user_id = ? AND w.is_correct = 0 AND c.is_correct = 1
		   AND (c.attempt_number > w.attempt_number
		        OR ((c.attempt_number IS NULL OR w.attempt_number IS NULL) AND c.completed_at > w.completed_at))`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query resolved problems: %w", err)
	}
	defer rows.Close()

	resolved := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		resolved[id] = true
	}
	return resolved, rows.Err()
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

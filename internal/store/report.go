package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edubridge/edubridge/internal/model"
)

// SaveProgressReport persists a generated progress report.
func (s *Store) SaveProgressReport(ctx context.Context, r model.ProgressReport) error {
	notes, err := json.Marshal(r.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress_reports (id, student_id, author_id, summary, notes_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StudentID, r.AuthorID, r.Summary, string(notes), r.CreatedAt,
	)
	return err
}

// GetProgressReport returns a report by ID.
func (s *Store) GetProgressReport(ctx context.Context, id string) (model.ProgressReport, error) {
	var (
		r     model.ProgressReport
		notes string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, author_id, summary, notes_json, created_at
		 FROM progress_reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.StudentID, &r.AuthorID, &r.Summary, &notes, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(notes), &r.Notes); err != nil {
		return r, fmt.Errorf("unmarshal notes for report %s: %w", id, err)
	}
	return r, nil
}

// ListProgressReports returns the reports written for a student, newest first.
// Notes are not loaded.
func (s *Store) ListProgressReports(ctx context.Context, studentID int64) ([]model.ProgressReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, author_id, summary, created_at
		 FROM progress_reports WHERE student_id = ? ORDER BY created_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reports := []model.ProgressReport{}
	for rows.Next() {
		var r model.ProgressReport
		if err := rows.Scan(&r.ID, &r.StudentID, &r.AuthorID, &r.Summary, &r.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

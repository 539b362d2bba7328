package model

import "time"

// NotesExport is the top-level JSON structure written by the export command.
type NotesExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	Students   []StudentNotes `json:"students"`
	Totals     ExportTotals   `json:"totals"`
}

// StudentNotes holds one student's incorrect-answer notes for export.
type StudentNotes struct {
	UserID      int64                  `json:"user_id"`
	Username    string                 `json:"username"`
	DisplayName string                 `json:"display_name"`
	Notes       IncorrectAnswersReport `json:"notes"`
}

// ExportTotals summarizes an export across all students.
type ExportTotals struct {
	Students       int `json:"students"`
	TotalIncorrect int `json:"total_incorrect"`
	TotalCompleted int `json:"total_completed"`
}

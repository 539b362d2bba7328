package model

import "time"

// ProblemRef is the slice of a problem joined onto every attempt record.
type ProblemRef struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Subject       string     `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Explanation   string     `json:"explanation"`
	CorrectAnswer string     `json:"correctAnswer"`
}

// AttemptRecord is an attempt as read by the notes pipeline. Problem is nil
// when the referenced problem row no longer exists.
type AttemptRecord struct {
	ProblemID      int64       `json:"problemId"`
	SelectedAnswer string      `json:"selectedAnswer"`
	IsCorrect      bool        `json:"isCorrect"`
	CompletedAt    *time.Time  `json:"completedAt"`
	AttemptNumber  *int        `json:"attemptNumber"`
	TimeSpent      *int        `json:"timeSpent"`
	Problem        *ProblemRef `json:"problem"`
}

// ProblemAttemptGroup holds every incorrect attempt at one problem, most recent first.
type ProblemAttemptGroup struct {
	ProblemRef
	MyAnswer    string          `json:"myAnswer"`
	Attempts    int             `json:"attempts" validate:"gte=1"`
	LastAttempt *time.Time      `json:"lastAttempt"`
	Resolved    bool            `json:"resolved"`
	AllAttempts []AttemptRecord `json:"allAttempts" validate:"required,min=1"`
}

// SubjectGroup is the incorrect-answer note for one subject.
type SubjectGroup struct {
	Subject        string                `json:"subject" validate:"required"`
	IncorrectCount int                   `json:"incorrectCount" validate:"gte=1"`
	RetryCount     int                   `json:"retryCount" validate:"gte=0"`
	CompletedCount int                   `json:"completedCount" validate:"gte=0,ltefield=TotalProblems"`
	TotalProblems  int                   `json:"totalProblems" validate:"gte=1"`
	LastUpdated    *time.Time            `json:"lastUpdated"`
	Problems       []ProblemAttemptGroup `json:"problems" validate:"required,min=1,dive"`
}

// IncorrectAnswersStats is the reduction over every subject group.
type IncorrectAnswersStats struct {
	TotalIncorrect       int    `json:"totalIncorrect" validate:"gte=0"`
	TotalRetry           int    `json:"totalRetry" validate:"gte=0"`
	TotalCompleted       int    `json:"totalCompleted" validate:"gte=0"`
	AverageAttempts      int    `json:"averageAttempts" validate:"gte=0"`
	MostDifficultSubject string `json:"mostDifficultSubject"`
}

// IncorrectAnswersReport is the payload served by the incorrect-answers endpoint.
type IncorrectAnswersReport struct {
	IncorrectAnswers []SubjectGroup        `json:"incorrectAnswers" validate:"dive"`
	Subjects         []string              `json:"subjects"`
	Stats            IncorrectAnswersStats `json:"stats"`
}

// ProgressReport is a persisted snapshot of a student's notes with a narrative summary.
type ProgressReport struct {
	ID        string                 `json:"id"`
	StudentID int64                  `json:"studentId"`
	AuthorID  int64                  `json:"authorId"`
	Summary   string                 `json:"summary"`
	CreatedAt time.Time              `json:"createdAt"`
	Notes     IncorrectAnswersReport `json:"notes"`
}

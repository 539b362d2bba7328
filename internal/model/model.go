package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents problem difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Problem is a single entry in the problem bank.
type Problem struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Subject       string     `json:"subject"`
	Difficulty    Difficulty `json:"difficulty"`
	Explanation   string     `json:"explanation"`
	CorrectAnswer string     `json:"correctAnswer,omitempty"`
}

// Attempt is one stored submission of an answer by a user.
type Attempt struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	ProblemID      int64      `json:"problemId"`
	SelectedAnswer string     `json:"selectedAnswer"`
	IsCorrect      bool       `json:"isCorrect"`
	AttemptNumber  int        `json:"attemptNumber"`
	TimeSpent      *int       `json:"timeSpent,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/edu")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Lang          string // Default UI language
}

// ProblemImport is used for loading problems from JSON.
type ProblemImport struct {
	Title         string     `json:"title" validate:"required"`
	Content       string     `json:"content"`
	Subject       string     `json:"subject"`
	Difficulty    Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Explanation   string     `json:"explanation"`
	CorrectAnswer string     `json:"correct_answer" validate:"required"`
}

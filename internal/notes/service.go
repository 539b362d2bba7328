package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edubridge/edubridge/internal/model"
)

// ErrReportUnavailable is returned when the notes for a user cannot be built.
var ErrReportUnavailable = errors.New("unable to build incorrect-answer report")

// Source supplies the attempt data the pipeline reads.
type Source interface {
	// FetchIncorrectAttempts returns a user's incorrect attempts joined with their problems.
	FetchIncorrectAttempts(ctx context.Context, userID int64) ([]model.AttemptRecord, error)
	// FetchResolvedProblemIDs returns the problems a user later answered correctly.
	FetchResolvedProblemIDs(ctx context.Context, userID int64) (map[int64]bool, error)
}

// LabelFunc resolves the label for subject-less problems for a request,
// typically from the request's locale.
type LabelFunc func(ctx context.Context) string

// Service fetches a user's attempts and runs them through an Aggregator.
type Service struct {
	src      Source
	logger   *slog.Logger
	label    LabelFunc
	validate *validator.Validate
}

// NewService creates a Service. A nil label always files subject-less
// problems under DefaultSubject.
func NewService(src Source, logger *slog.Logger, label LabelFunc) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if label == nil {
		label = func(context.Context) string { return DefaultSubject }
	}
	return &Service{
		src:      src,
		logger:   logger,
		label:    label,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Report builds the incorrect-answer notes for userID. Any failure is
// returned wrapped in ErrReportUnavailable; no partial report is returned.
func (s *Service) Report(ctx context.Context, userID int64) (*model.IncorrectAnswersReport, error) {
	records, err := s.src.FetchIncorrectAttempts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch attempts for user %d: %w", ErrReportUnavailable, userID, err)
	}
	resolved, err := s.src.FetchResolvedProblemIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch resolved problems for user %d: %w", ErrReportUnavailable, userID, err)
	}

	agg := NewAggregator(s.logger.With("user_id", userID), s.label(ctx))
	report := agg.Build(records, resolved)

	if err := s.validate.Struct(report); err != nil {
		return nil, fmt.Errorf("%w: invalid report for user %d: %w", ErrReportUnavailable, userID, err)
	}
	return &report, nil
}

// ExportAll builds notes for every given student.
func (s *Service) ExportAll(ctx context.Context, students []model.User) (model.NotesExport, error) {
	export := model.NotesExport{
		ExportedAt: time.Now().UTC(),
		Students:   make([]model.StudentNotes, 0, len(students)),
	}
	for _, u := range students {
		report, err := s.Report(ctx, u.ID)
		if err != nil {
			return export, fmt.Errorf("export notes for %s: %w", u.Username, err)
		}
		export.Students = append(export.Students, model.StudentNotes{
			UserID:      u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Notes:       *report,
		})
		export.Totals.TotalIncorrect += report.Stats.TotalIncorrect
		export.Totals.TotalCompleted += report.Stats.TotalCompleted
	}
	export.Totals.Students = len(export.Students)
	return export, nil
}

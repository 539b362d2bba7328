package notes

import (
	"context"
	"log/slog"
	"time"

	"github.com/edubridge/edubridge/internal/model"
)

type instrumentedSource struct {
	inner  Source
	logger *slog.Logger
}

// InstrumentSource wraps src so every fetch logs its duration and outcome.
func InstrumentSource(logger *slog.Logger, src Source) Source {
	if src == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumentedSource{inner: src, logger: logger}
}

func (s *instrumentedSource) FetchIncorrectAttempts(ctx context.Context, userID int64) ([]model.AttemptRecord, error) {
	start := time.Now()
	out, err := s.inner.FetchIncorrectAttempts(ctx, userID)
	s.observe(ctx, "fetch_incorrect_attempts", userID, len(out), err, time.Since(start))
	return out, err
}

func (s *instrumentedSource) FetchResolvedProblemIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	start := time.Now()
	out, err := s.inner.FetchResolvedProblemIDs(ctx, userID)
	s.observe(ctx, "fetch_resolved_problems", userID, len(out), err, time.Since(start))
	return out, err
}

func (s *instrumentedSource) observe(ctx context.Context, op string, userID int64, rows int, err error, dur time.Duration) {
	if err != nil {
		s.logger.ErrorContext(ctx, "attempt source call failed",
			"op", op, "user_id", userID, "duration", dur, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "attempt source call",
		"op", op, "user_id", userID, "rows", rows, "duration", dur)
}

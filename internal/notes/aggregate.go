// Package notes builds incorrect-answer notes: a student's incorrect attempts
// grouped by problem, then by subject, then reduced into summary statistics.
package notes

import (
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/edubridge/edubridge/internal/model"
)

// DefaultSubject labels problems that have no subject when no localized label is configured.
const DefaultSubject = "Other"

// Aggregator runs the grouping, subject aggregation, stats and assembly stages.
// It holds no per-request state and is safe for concurrent use.
type Aggregator struct {
	logger         *slog.Logger
	defaultSubject string
}

// NewAggregator returns an Aggregator that logs dropped records to logger and
// files subject-less problems under defaultSubject.
func NewAggregator(logger *slog.Logger, defaultSubject string) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(defaultSubject) == "" {
		defaultSubject = DefaultSubject
	}
	return &Aggregator{logger: logger, defaultSubject: defaultSubject}
}

// Build runs every stage over records. resolved marks problems the student has
// since answered correctly; it may be nil.
func (a *Aggregator) Build(records []model.AttemptRecord, resolved map[int64]bool) model.IncorrectAnswersReport {
	groups := a.GroupByProblem(records)
	subjects := a.AggregateBySubject(groups, resolved)
	return BuildReport(subjects, ComputeStats(subjects))
}

// GroupByProblem groups incorrect attempt records by problem. Groups come back
// in the order their problem first appears in records, and each group's
// attempts are sorted most recent first with undated attempts last.
//
// Records without a problem, or whose problem ID disagrees with the joined
// problem, are dropped with a warning. Correct attempts are ignored.
func (a *Aggregator) GroupByProblem(records []model.AttemptRecord) []model.ProblemAttemptGroup {
	var groups []model.ProblemAttemptGroup
	index := make(map[int64]int)

	for _, rec := range records {
		if rec.Problem == nil {
			a.logger.Warn("dropping attempt record without problem", "problem_id", rec.ProblemID)
			continue
		}
		if rec.Problem.ID != rec.ProblemID {
			a.logger.Warn("dropping attempt record with mismatched problem",
				"problem_id", rec.ProblemID, "joined_problem_id", rec.Problem.ID)
			continue
		}
		if rec.IsCorrect {
			a.logger.Debug("ignoring correct attempt in incorrect-answer feed", "problem_id", rec.ProblemID)
			continue
		}

		i, ok := index[rec.ProblemID]
		if !ok {
			i = len(groups)
			index[rec.ProblemID] = i
			groups = append(groups, model.ProblemAttemptGroup{ProblemRef: *rec.Problem})
		}
		groups[i].AllAttempts = append(groups[i].AllAttempts, rec)
	}

	for i := range groups {
		g := &groups[i]
		slices.SortStableFunc(g.AllAttempts, byCompletedAtDesc)
		latest := g.AllAttempts[0]
		g.MyAnswer = latest.SelectedAnswer
		g.Attempts = len(g.AllAttempts)
		g.LastAttempt = copyTime(latest.CompletedAt)
	}
	return groups
}

// AggregateBySubject folds problem groups into one SubjectGroup per subject,
// in the order each subject is first seen.
func (a *Aggregator) AggregateBySubject(groups []model.ProblemAttemptGroup, resolved map[int64]bool) []model.SubjectGroup {
	var subjects []model.SubjectGroup
	index := make(map[string]int)

	for _, g := range groups {
		key := strings.TrimSpace(g.Subject)
		if key == "" {
			key = a.defaultSubject
		}

		i, ok := index[key]
		if !ok {
			i = len(subjects)
			index[key] = i
			subjects = append(subjects, model.SubjectGroup{Subject: key})
		}
		sg := &subjects[i]

		g.Resolved = resolved[g.ID]
		sg.Problems = append(sg.Problems, g)
		sg.IncorrectCount++
		sg.TotalProblems++
		sg.RetryCount += max(0, g.Attempts-1)
		if g.Resolved {
			sg.CompletedCount++
		}
		if g.LastAttempt != nil && (sg.LastUpdated == nil || g.LastAttempt.After(*sg.LastUpdated)) {
			sg.LastUpdated = copyTime(g.LastAttempt)
		}
	}
	return subjects
}

// ComputeStats reduces subject groups into global counters. An empty input
// yields zero stats and no most-difficult subject.
func ComputeStats(subjects []model.SubjectGroup) model.IncorrectAnswersStats {
	var (
		stats         model.IncorrectAnswersStats
		totalAttempts int
		problems      int
		hardest       int
	)
	for _, sg := range subjects {
		stats.TotalIncorrect += sg.IncorrectCount
		stats.TotalRetry += sg.RetryCount
		stats.TotalCompleted += sg.CompletedCount
		for _, p := range sg.Problems {
			totalAttempts += p.Attempts
			problems++
		}
		// Strictly greater keeps the first subject on ties.
		if sg.IncorrectCount > hardest {
			hardest = sg.IncorrectCount
			stats.MostDifficultSubject = sg.Subject
		}
	}
	if problems > 0 {
		stats.AverageAttempts = int(math.Round(float64(totalAttempts) / float64(problems)))
	}
	return stats
}

// BuildReport assembles the response payload. Slices are never nil so they
// serialize as empty arrays.
func BuildReport(subjects []model.SubjectGroup, stats model.IncorrectAnswersStats) model.IncorrectAnswersReport {
	report := model.IncorrectAnswersReport{
		IncorrectAnswers: make([]model.SubjectGroup, 0, len(subjects)),
		Subjects:         make([]string, 0, len(subjects)),
		Stats:            stats,
	}
	for _, sg := range subjects {
		report.IncorrectAnswers = append(report.IncorrectAnswers, sg)
		report.Subjects = append(report.Subjects, sg.Subject)
	}
	return report
}

func byCompletedAtDesc(x, y model.AttemptRecord) int {
	switch {
	case x.CompletedAt == nil && y.CompletedAt == nil:
		return 0
	case x.CompletedAt == nil:
		return 1
	case y.CompletedAt == nil:
		return -1
	default:
		return y.CompletedAt.Compare(*x.CompletedAt)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

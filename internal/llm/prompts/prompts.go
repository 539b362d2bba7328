package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/edubridge/edubridge/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const (
	maxAnswerRunes      = 500
	maxProblemsPerTopic = 5
)

// PromptVariant represents a report summary prompt variant.
type PromptVariant string

const (
	// PromptBrief asks for a short note built from the global stats only.
	PromptBrief PromptVariant = "brief"
	// PromptDetailed walks through every subject and sample problems.
	PromptDetailed PromptVariant = "detailed"
)

var validVariants = map[PromptVariant]bool{
	PromptBrief:    true,
	PromptDetailed: true,
}

var (
	loadOnce         sync.Once
	loadErr          error
	summaryTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// SummaryData holds template data for summary prompts.
type SummaryData struct {
	Lang                 string
	StudentName          string
	TotalIncorrect       int
	TotalRetry           int
	TotalCompleted       int
	AverageAttempts      int
	MostDifficultSubject string
	Subjects             []SubjectData
}

// SubjectData is one subject section of a detailed prompt.
type SubjectData struct {
	Name      string
	Incorrect int
	Retries   int
	Completed int
	Problems  []ProblemData
}

// ProblemData is one sample problem listed under a subject.
type ProblemData struct {
	Title         string
	Difficulty    model.Difficulty
	Attempts      int
	CorrectAnswer string
	MyAnswer      string
}

// Load parses the summary templates from fsys, or from the embedded
// templates when fsys is nil. Templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = templateFS
		}
		summaryTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptBrief, PromptDetailed} {
			file := "templates/summary_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			summaryTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildSummaryPrompt renders the summary prompt for a student's notes.
func BuildSummaryPrompt(variant PromptVariant, lang string, student model.User, report model.IncorrectAnswersReport) (string, error) {
	if summaryTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := summaryTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, NewSummaryData(lang, student, report)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NewSummaryData flattens a report into template data. Student answers are
// sanitized and only the first few problems of each subject are listed.
func NewSummaryData(lang string, student model.User, report model.IncorrectAnswersReport) SummaryData {
	name := student.DisplayName
	if name == "" {
		name = student.Username
	}
	data := SummaryData{
		Lang:                 lang,
		StudentName:          name,
		TotalIncorrect:       report.Stats.TotalIncorrect,
		TotalRetry:           report.Stats.TotalRetry,
		TotalCompleted:       report.Stats.TotalCompleted,
		AverageAttempts:      report.Stats.AverageAttempts,
		MostDifficultSubject: report.Stats.MostDifficultSubject,
	}
	for _, sg := range report.IncorrectAnswers {
		sd := SubjectData{
			Name:      sg.Subject,
			Incorrect: sg.IncorrectCount,
			Retries:   sg.RetryCount,
			Completed: sg.CompletedCount,
		}
		for i, p := range sg.Problems {
			if i == maxProblemsPerTopic {
				break
			}
			sd.Problems = append(sd.Problems, ProblemData{
				Title:         p.Title,
				Difficulty:    p.Difficulty,
				Attempts:      p.Attempts,
				CorrectAnswer: p.CorrectAnswer,
				MyAnswer:      sanitizeAnswer(p.MyAnswer),
			})
		}
		data.Subjects = append(data.Subjects, sd)
	}
	return data
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + " [truncated]"
	}

	return answer
}

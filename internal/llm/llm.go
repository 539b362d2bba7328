package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appI18n "github.com/edubridge/edubridge/internal/i18n"
	"github.com/edubridge/edubridge/internal/llm/prompts"
	"github.com/edubridge/edubridge/internal/model"
)

// Summarizer writes the narrative part of a progress report.
type Summarizer interface {
	Summarize(ctx context.Context, student model.User, report model.IncorrectAnswersReport) (string, error)
}

// Placeholder is a Summarizer that fills a localized template from the
// report's stats. Its output depends only on its input.
type Placeholder struct{}

// Summarize implements Summarizer.
func (Placeholder) Summarize(ctx context.Context, student model.User, report model.IncorrectAnswersReport) (string, error) {
	data := prompts.NewSummaryData("", student, report)
	if data.TotalIncorrect == 0 {
		return appI18n.Td(ctx, "PlaceholderSummaryEmpty", map[string]any{"Name": data.StudentName}), nil
	}
	return appI18n.Td(ctx, "PlaceholderSummary", map[string]any{
		"Name":      data.StudentName,
		"Incorrect": data.TotalIncorrect,
		"Subjects":  len(data.Subjects),
		"Average":   data.AverageAttempts,
		"Completed": data.TotalCompleted,
		"Hardest":   data.MostDifficultSubject,
	}), nil
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
	lang    string
}

// New creates a new LLM client. Summaries are written in lang.
func New(baseURL, apiKey, modelName, variant, lang string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	if err := prompts.Load(nil); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
		lang:    lang,
	}, nil
}

// Ping checks that the endpoint is reachable and serves models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Summarize implements Summarizer.
func (c *Client) Summarize(ctx context.Context, student model.User, report model.IncorrectAnswersReport) (string, error) {
	prompt, err := prompts.BuildSummaryPrompt(c.variant, c.lang, student, report)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: "Write the progress note now."},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM summary", "student_id", student.ID, "chars", len(text))
	if text == "" {
		return "", errors.New("LLM returned an empty summary")
	}
	return text, nil
}

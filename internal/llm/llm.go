package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/codedrill/internal/llm/prompts"
	"github.com/pavelanni/codedrill/internal/model"
)

// Suggestion is the model's proposed grade for a manually graded answer.
// A professor always confirms it before it counts.
type Suggestion struct {
	Points   float64 `json:"points"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
	prompts *prompts.Set
}

// New creates a new LLM client. An empty variant means standard.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) (*Client, error) {
	if variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant: %s", variant)
	}
	set, err := prompts.Default()
	if err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
		prompts: set,
	}, nil
}

// SuggestGrade asks the model to grade a free-text answer.
func (c *Client) SuggestGrade(ctx context.Context, q model.Question, answer string) (*Suggestion, error) {
	system, err := c.prompts.BuildGradePrompt(c.variant, q, answer)
	if err != nil {
		return nil, err
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", q.ID, "raw", raw)
	return parseSuggestion(raw, q.Points)
}

// Ping checks that the endpoint answers and the model exists.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.GetModel(ctx, c.model); err != nil {
		return fmt.Errorf("get model %s: %w", c.model, err)
	}
	return nil
}

// parseSuggestion decodes the model output. Code fences are tolerated and
// points are clamped to [0, maxPoints] in half-point steps.
func parseSuggestion(raw string, maxPoints float64) (*Suggestion, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var out Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	out.Points = math.Round(out.Points*2) / 2
	out.Points = math.Max(0, math.Min(out.Points, maxPoints))
	return &out, nil
}

// Package ai asks a Gemini model for an execute plan: the first concrete
// action, a stopping rule, and a duration. The model is advisory; callers
// fall back to configured defaults when it is absent or failing.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"loopline/internal/config"
	"loopline/internal/domain"
	"loopline/internal/lifecycle"
)

const defaultModel = "gemini-2.0-flash"

// Suggester generates execute plans with the Gemini API.
type Suggester struct {
	client *genai.Client
	model  string
	max    int
}

// New builds a suggester from config. Returns (nil, nil) when AI is
// disabled or no API key is present: running without a suggester is the
// normal offline mode, not an error.
func New(ctx context.Context, cfg *config.Config) (*Suggester, error) {
	if cfg == nil || !cfg.AI.Enabled {
		return nil, nil
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.AI.Model
	if model == "" {
		model = defaultModel
	}
	return &Suggester{client: client, model: model, max: config.MaxExecuteDurationMinutes}, nil
}

type planResponse struct {
	StartAction     string `json:"start_action"`
	StopRule        string `json:"stop_rule"`
	DurationMinutes int    `json:"duration_minutes"`
}

const promptTemplate = `You help someone close an open loop they captured earlier.
The item: %q (category: %s, source: %s).
Reply with JSON only, shaped as
{"start_action": "...", "stop_rule": "...", "duration_minutes": N}
where start_action is the first concrete physical step to take right now,
stop_rule says when to stop regardless of progress, and duration_minutes
is between 1 and %d.`

// Suggest asks the model for a plan for one card.
func (s *Suggester) Suggest(ctx context.Context, card domain.Card) (lifecycle.ExecutePlan, error) {
	title := card.AITitle
	if title == "" {
		title = card.ExtractedTitle
	}
	if title == "" {
		title = card.SourceContent
	}
	prompt := fmt.Sprintf(promptTemplate, title, card.Category, card.SourceType, s.max)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return lifecycle.ExecutePlan{}, fmt.Errorf("generate plan: %w", err)
	}
	return ParsePlan(result.Text(), s.max)
}

// ParsePlan decodes a model reply into a plan, tolerating markdown fences
// and clamping the duration into range.
func ParsePlan(text string, maxMinutes int) (lifecycle.ExecutePlan, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var resp planResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return lifecycle.ExecutePlan{}, fmt.Errorf("parse plan reply: %w", err)
	}
	if resp.StartAction == "" && resp.StopRule == "" {
		return lifecycle.ExecutePlan{}, fmt.Errorf("plan reply is empty")
	}
	if resp.DurationMinutes > maxMinutes {
		resp.DurationMinutes = maxMinutes
	}
	if resp.DurationMinutes < 0 {
		resp.DurationMinutes = 0
	}
	return lifecycle.ExecutePlan{
		StartAction:     resp.StartAction,
		StopRule:        resp.StopRule,
		DurationMinutes: resp.DurationMinutes,
	}, nil
}

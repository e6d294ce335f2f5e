package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/veriquery/veriquery/internal/models"
)

const moderationPrompt = `Classify the following text for content policy concerns.
Respond with ONLY a JSON object, no prose, in exactly this shape:
{"flagged": <bool>, "categories": {"hate": <bool>, "harassment": <bool>, "self_harm": <bool>, "sexual": <bool>, "violence": <bool>}, "scores": {"hate": <0..1>, "harassment": <0..1>, "self_harm": <0..1>, "sexual": <0..1>, "violence": <0..1>}}

Text:
`

// moderateViaChat implements moderation for providers without a native
// moderation endpoint by asking their own chat endpoint a constrained
// structured question. A reply that cannot be parsed yields the
// neutral assessment, never an error: moderation fallback must not
// make a provider look broken.
func moderateViaChat(ctx context.Context, a Adapter, text string) (*models.ModerationResult, error) {
	resp, err := a.Generate(ctx, models.GenerationRequest{
		Prompt:      moderationPrompt + text,
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, err
	}

	result, ok := parseModerationJSON(resp.Text)
	if !ok {
		return models.NeutralModeration(), nil
	}
	return result, nil
}

// parseModerationJSON extracts the first JSON object from a reply that
// may be wrapped in code fences or prose.
func parseModerationJSON(text string) (*models.ModerationResult, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var parsed struct {
		Flagged    bool               `json:"flagged"`
		Categories map[string]bool    `json:"categories"`
		Scores     map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, false
	}

	result := &models.ModerationResult{
		Flagged:    parsed.Flagged,
		Categories: parsed.Categories,
		Scores:     parsed.Scores,
	}
	if result.Categories == nil {
		result.Categories = map[string]bool{}
	}
	if result.Scores == nil {
		result.Scores = map[string]float64{}
	}
	return result, true
}

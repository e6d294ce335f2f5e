package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/veriquery/veriquery/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

var errNoEmbeddings = errors.New("provider has no embedding endpoint")

// AnthropicAdapter implements the Adapter interface for the Anthropic
// Messages API.
type AnthropicAdapter struct {
	*BaseAdapter
	baseURL string
}

// NewAnthropicAdapter creates a new Anthropic adapter instance.
func NewAnthropicAdapter(config models.ProviderConfig, pool *ClientPool) Adapter {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicAdapter{
		BaseAdapter: NewBaseAdapter(config, pool),
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate produces a completion through the Messages API.
func (a *AnthropicAdapter) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}
	req = a.effective(req)

	body := anthropicRequest{
		Model:         a.config.ModelName,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		System:        req.SystemPrompt,
		Messages:      []anthropicMessage{{Role: "user", Content: req.Prompt}},
		StopSequences: req.Stop,
	}

	var parsed anthropicResponse
	backoff := retry.WithMaxRetries(uint64(a.config.MaxRetries), retry.NewConstant(a.retryDelay()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callErr := a.post(ctx, "/v1/messages", body, &parsed)
		if callErr == nil {
			return nil
		}
		if pe := asProviderError(a.config.ID, callErr); retryableUpstream(pe) {
			return retry.RetryableError(pe)
		}
		return callErr
	})
	if err != nil {
		return nil, asProviderError(a.config.ID, err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      errEmptyChoices,
		}
	}

	return &models.GenerationResponse{
		Text:       text.String(),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Raw: map[string]interface{}{
			"id":          parsed.ID,
			"model":       parsed.Model,
			"stop_reason": parsed.StopReason,
			"usage": map[string]interface{}{
				"input_tokens":  parsed.Usage.InputTokens,
				"output_tokens": parsed.Usage.OutputTokens,
			},
		},
	}, nil
}

// Embed is not supported natively; the fleet routes embeddings to the
// designated fallback provider.
func (a *AnthropicAdapter) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return models.Embedding{}, &models.ProviderError{
		Kind:     models.KindNotFound,
		Provider: a.config.ID,
		Err:      errNoEmbeddings,
	}
}

// Moderate answers through a constrained chat prompt; Anthropic has no
// moderation endpoint.
func (a *AnthropicAdapter) Moderate(ctx context.Context, text string) (*models.ModerationResult, error) {
	return moderateViaChat(ctx, a, text)
}

func (a *AnthropicAdapter) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &models.ProviderError{Kind: models.KindParse, Provider: a.config.ID, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return classifyTransport(a.config.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.config.APIKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.httpClient().Do(httpReq)
	if err != nil {
		return classifyTransport(a.config.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(a.config.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTP(a.config.ID, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

func (a *AnthropicAdapter) retryDelay() time.Duration {
	if a.config.RetryDelay > 0 {
		return a.config.RetryDelay
	}
	return defaultRetryDelay
}

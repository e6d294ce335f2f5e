package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/veriquery/veriquery/internal/models"
)

const (
	geminiDefaultBaseURL   = "https://generativelanguage.googleapis.com"
	geminiEmbeddingModel   = "text-embedding-004"
	geminiGenerateEndpoint = "/v1beta/models/%s:generateContent"
	geminiEmbedEndpoint    = "/v1beta/models/%s:embedContent"
)

// GeminiAdapter implements the Adapter interface for the Google
// Generative Language API.
type GeminiAdapter struct {
	*BaseAdapter
	baseURL string
}

// NewGeminiAdapter creates a new Gemini adapter instance.
func NewGeminiAdapter(config models.ProviderConfig, pool *ClientPool) Adapter {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiAdapter{
		BaseAdapter: NewBaseAdapter(config, pool),
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64  `json:"temperature,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Generate produces a completion through generateContent.
func (a *GeminiAdapter) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}
	req = a.effective(req)

	body := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.StopSequences = req.Stop

	path := fmt.Sprintf(geminiGenerateEndpoint, a.config.ModelName)

	var parsed geminiGenerateResponse
	backoff := retry.WithMaxRetries(uint64(a.config.MaxRetries), retry.NewConstant(a.retryDelay()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callErr := a.post(ctx, path, body, &parsed)
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

	if len(parsed.Candidates) == 0 {
		return nil, &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      errEmptyChoices,
		}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &models.GenerationResponse{
		Text:       text.String(),
		TokensUsed: parsed.UsageMetadata.TotalTokenCount,
		Raw: map[string]interface{}{
			"model":         parsed.ModelVersion,
			"finish_reason": parsed.Candidates[0].FinishReason,
			"usage": map[string]interface{}{
				"prompt_tokens":     parsed.UsageMetadata.PromptTokenCount,
				"completion_tokens": parsed.UsageMetadata.CandidatesTokenCount,
				"total_tokens":      parsed.UsageMetadata.TotalTokenCount,
			},
		},
	}, nil
}

// Embed produces an embedding through embedContent.
func (a *GeminiAdapter) Embed(ctx context.Context, text string) (models.Embedding, error) {
	if err := a.requireKey(); err != nil {
		return models.Embedding{}, err
	}

	body := map[string]interface{}{
		"content": geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	var parsed struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}

	path := fmt.Sprintf(geminiEmbedEndpoint, geminiEmbeddingModel)
	if err := a.post(ctx, path, body, &parsed); err != nil {
		return models.Embedding{}, asProviderError(a.config.ID, err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return models.Embedding{}, &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      errEmptyEmbedding,
		}
	}

	return models.Embedding{
		Vector:     parsed.Embedding.Values,
		ProviderID: a.config.ID,
	}, nil
}

// Moderate answers through a constrained chat prompt; the API has no
// standalone moderation endpoint.
func (a *GeminiAdapter) Moderate(ctx context.Context, text string) (*models.ModerationResult, error) {
	return moderateViaChat(ctx, a, text)
}

func (a *GeminiAdapter) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &models.ProviderError{Kind: models.KindParse, Provider: a.config.ID, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return classifyTransport(a.config.ID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", a.config.APIKey)

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

func (a *GeminiAdapter) retryDelay() time.Duration {
	if a.config.RetryDelay > 0 {
		return a.config.RetryDelay
	}
	return defaultRetryDelay
}

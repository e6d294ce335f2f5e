package providers

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"github.com/veriquery/veriquery/internal/models"
)

// defaultEmbeddingModel is used when the provider config does not name
// a chat model that can embed.
const defaultEmbeddingModel = openai.SmallEmbedding3

// OpenAICompatAdapter serves every provider kind that speaks the
// OpenAI chat-completions wire format: openai itself, perplexity,
// openrouter and local endpoints, each selected purely by BaseURL.
type OpenAICompatAdapter struct {
	*BaseAdapter
	client *openai.Client
}

// NewOpenAICompatAdapter creates an adapter for an OpenAI-compatible
// endpoint.
func NewOpenAICompatAdapter(config models.ProviderConfig, pool *ClientPool) Adapter {
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	cc.HTTPClient = pool.Client()

	return &OpenAICompatAdapter{
		BaseAdapter: NewBaseAdapter(config, pool),
		client:      openai.NewClientWithConfig(cc),
	}
}

// Generate produces a chat completion. Transient 5xx upstream faults
// are retried within the configured budget; everything else surfaces
// immediately so the fallback executor can move to the next candidate.
func (a *OpenAICompatAdapter) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}
	req = a.effective(req)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       a.config.ModelName,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}

	var resp openai.ChatCompletionResponse
	backoff := retry.WithMaxRetries(uint64(a.config.MaxRetries), retry.NewConstant(a.retryDelay()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = a.client.CreateChatCompletion(ctx, chatReq)
		if callErr == nil {
			return nil
		}
		classified := classifyOpenAI(a.config.ID, callErr)
		if retryableUpstream(classified) {
			return retry.RetryableError(classified)
		}
		return classified
	})
	if err != nil {
		return nil, asProviderError(a.config.ID, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      errEmptyChoices,
		}
	}

	return &models.GenerationResponse{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Raw: map[string]interface{}{
			"id":            resp.ID,
			"model":         resp.Model,
			"finish_reason": string(resp.Choices[0].FinishReason),
			"usage": map[string]interface{}{
				"prompt_tokens":     resp.Usage.PromptTokens,
				"completion_tokens": resp.Usage.CompletionTokens,
				"total_tokens":      resp.Usage.TotalTokens,
			},
		},
	}, nil
}

// Embed produces an embedding through the native endpoint.
func (a *OpenAICompatAdapter) Embed(ctx context.Context, text string) (models.Embedding, error) {
	if err := a.requireKey(); err != nil {
		return models.Embedding{}, err
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: defaultEmbeddingModel,
	})
	if err != nil {
		return models.Embedding{}, classifyOpenAI(a.config.ID, err)
	}
	if len(resp.Data) == 0 {
		return models.Embedding{}, &models.ProviderError{
			Kind:     models.KindParse,
			Provider: a.config.ID,
			Err:      errEmptyEmbedding,
		}
	}

	return models.Embedding{
		Vector:     resp.Data[0].Embedding,
		ProviderID: a.config.ID,
	}, nil
}

// Moderate uses the native moderation endpoint when the provider has
// one; otherwise it answers through a constrained chat prompt.
func (a *OpenAICompatAdapter) Moderate(ctx context.Context, text string) (*models.ModerationResult, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	if !a.config.HasCapability(models.CapModeration) {
		return moderateViaChat(ctx, a, text)
	}

	resp, err := a.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return nil, classifyOpenAI(a.config.ID, err)
	}
	if len(resp.Results) == 0 {
		return models.NeutralModeration(), nil
	}

	r := resp.Results[0]
	return &models.ModerationResult{
		Flagged: r.Flagged,
		Categories: map[string]bool{
			"hate":       r.Categories.Hate,
			"harassment": r.Categories.Harassment,
			"self_harm":  r.Categories.SelfHarm,
			"sexual":     r.Categories.Sexual,
			"violence":   r.Categories.Violence,
		},
		Scores: map[string]float64{
			"hate":       float64(r.CategoryScores.Hate),
			"harassment": float64(r.CategoryScores.Harassment),
			"self_harm":  float64(r.CategoryScores.SelfHarm),
			"sexual":     float64(r.CategoryScores.Sexual),
			"violence":   float64(r.CategoryScores.Violence),
		},
	}, nil
}

func (a *OpenAICompatAdapter) retryDelay() time.Duration {
	if a.config.RetryDelay > 0 {
		return a.config.RetryDelay
	}
	return defaultRetryDelay
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquery/veriquery/internal/models"
)

func testConfig(id string, kind models.ProviderKind, baseURL string) models.ProviderConfig {
	return models.ProviderConfig{
		ID:           id,
		Kind:         kind,
		ModelName:    "test-model",
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Capabilities: []models.Capability{models.CapChat},
		Enabled:      true,
		MaxRetries:   0,
		RetryDelay:   time.Millisecond,
	}
}

func TestOpenAICompatGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "test-model",
			"choices": [{"message": {"role": "assistant", "content": "Paris."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	adapter := NewOpenAICompatAdapter(testConfig("p", models.KindOpenAI, srv.URL+"/v1"), pool)

	resp, err := adapter.Generate(context.Background(), models.GenerationRequest{
		Prompt:       "What is the capital of France?",
		SystemPrompt: "Answer briefly.",
		Temperature:  0.2,
		MaxTokens:    100,
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", resp.Text)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])

	messages := gotBody["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
}

func TestOpenAICompatMissingKey(t *testing.T) {
	pool := NewClientPool()
	defer pool.Close()

	cfg := testConfig("p", models.KindOpenAI, "http://localhost:1/v1")
	cfg.APIKey = ""
	adapter := NewOpenAICompatAdapter(cfg, pool)

	_, err := adapter.Generate(context.Background(), models.GenerationRequest{Prompt: "q"})
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindConfig, perr.Kind)
}

func TestOpenAICompatAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	adapter := NewOpenAICompatAdapter(testConfig("p", models.KindOpenAI, srv.URL+"/v1"), pool)

	_, err := adapter.Generate(context.Background(), models.GenerationRequest{Prompt: "q"})
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindAuth, perr.Kind)
	assert.False(t, perr.Retryable())
}

func TestOpenAICompatRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
			"usage": {"total_tokens": 5}
		}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	cfg := testConfig("p", models.KindOpenAI, srv.URL+"/v1")
	cfg.MaxRetries = 2
	adapter := NewOpenAICompatAdapter(cfg, pool)

	resp, err := adapter.Generate(context.Background(), models.GenerationRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, calls)
}

func TestAnthropicGenerate(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotVersion = r.Header.Get("Anthropic-Version")
		assert.Equal(t, "/v1/messages", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg-1",
			"model": "test-model",
			"content": [{"type": "text", "text": "Pa"}, {"type": "text", "text": "ris."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	adapter := NewAnthropicAdapter(testConfig("claude", models.KindAnthropic, srv.URL), pool)

	resp, err := adapter.Generate(context.Background(), models.GenerationRequest{Prompt: "capital of France?"})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", resp.Text, "text blocks are concatenated")
	assert.Equal(t, 14, resp.TokensUsed, "input plus output tokens")
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
}

func TestAnthropicEmbedUnsupported(t *testing.T) {
	pool := NewClientPool()
	defer pool.Close()
	adapter := NewAnthropicAdapter(testConfig("claude", models.KindAnthropic, "http://localhost:1"), pool)

	_, err := adapter.Embed(context.Background(), "text")
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindNotFound, perr.Kind)
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Paris."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 3, "totalTokenCount": 11},
			"modelVersion": "test-model-001"
		}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	adapter := NewGeminiAdapter(testConfig("gemini", models.KindGemini, srv.URL), pool)

	resp, err := adapter.Generate(context.Background(), models.GenerationRequest{Prompt: "capital of France?"})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", resp.Text)
	assert.Equal(t, 11, resp.TokensUsed)
}

func TestGeminiEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":embedContent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"embedding": {"values": [0.1, 0.2, 0.3]}}`)
	}))
	defer srv.Close()

	pool := NewClientPool()
	defer pool.Close()
	adapter := NewGeminiAdapter(testConfig("gemini", models.KindGemini, srv.URL), pool)

	emb, err := adapter.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 3)
	assert.Equal(t, "gemini", emb.ProviderID)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   models.ErrorKind
	}{
		{http.StatusUnauthorized, models.KindAuth},
		{http.StatusForbidden, models.KindAuth},
		{http.StatusTooManyRequests, models.KindRateLimit},
		{http.StatusNotFound, models.KindNotFound},
		{http.StatusInternalServerError, models.KindHTTP},
		{http.StatusBadGateway, models.KindHTTP},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, models.ClassifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestClassifyTransportTimeout(t *testing.T) {
	err := classifyTransport("p", context.DeadlineExceeded)
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindTimeout, perr.Kind)
}

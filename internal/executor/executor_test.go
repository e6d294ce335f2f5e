package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriquery/veriquery/internal/models"
	"github.com/veriquery/veriquery/internal/providers"
	"github.com/veriquery/veriquery/internal/usage"
)

// fakeBackend serves the chat-completions wire format with a fixed
// status and reply, counting the calls it receives.
type fakeBackend struct {
	server *httptest.Server
	calls  atomic.Int64
}

func newFakeBackend(t *testing.T, status int, reply string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"message":"backend error","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-1",
			"model": "test-model",
			"choices": [{"message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`, reply)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func backendConfig(id, baseURL string) models.ProviderConfig {
	return models.ProviderConfig{
		ID:           id,
		Kind:         models.KindLocal,
		ModelName:    "test-model",
		BaseURL:      baseURL + "/v1",
		APIKey:       "test-key",
		Capabilities: []models.Capability{models.CapChat},
		Enabled:      true,
		MaxRetries:   0,
		RetryDelay:   time.Millisecond,
	}
}

func newFleet(t *testing.T, configs ...models.ProviderConfig) *providers.Fleet {
	t.Helper()
	fleet, err := providers.NewFleet(configs, nil, "")
	require.NoError(t, err)
	t.Cleanup(func() { fleet.Close() })
	return fleet
}

func plan(ids ...string) models.CandidatePlan {
	p := make(models.CandidatePlan, len(ids))
	for i, id := range ids {
		p[i] = models.Candidate{ProviderID: id, Score: 1.0}
	}
	return p
}

func TestExecuteFirstCandidateSucceeds(t *testing.T) {
	first := newFakeBackend(t, http.StatusOK, "Paris.")
	second := newFakeBackend(t, http.StatusOK, "should not be called")

	fleet := newFleet(t,
		backendConfig("p1", first.server.URL),
		backendConfig("p2", second.server.URL),
	)
	exec := New(fleet, usage.NewTracker(0, 0), nil, nil)

	result, err := exec.Execute(context.Background(), plan("p1", "p2"), models.GenerationRequest{Prompt: "capital of France"})
	require.NoError(t, err)

	assert.Equal(t, "p1", result.ProviderID)
	assert.Equal(t, "Paris.", result.Response.Text)
	assert.Equal(t, 30, result.Response.TokensUsed)
	assert.GreaterOrEqual(t, result.Elapsed, time.Duration(0))
	assert.Equal(t, int64(0), second.calls.Load(), "later candidates are never charged")
}

func TestExecuteFallsBackOnRateLimit(t *testing.T) {
	limited := newFakeBackend(t, http.StatusTooManyRequests, "")
	healthy := newFakeBackend(t, http.StatusOK, "Paris.")
	third := newFakeBackend(t, http.StatusOK, "unused")

	fleet := newFleet(t,
		backendConfig("p1", limited.server.URL),
		backendConfig("p2", healthy.server.URL),
		backendConfig("p3", third.server.URL),
	)
	tracker := usage.NewTracker(0, 0)
	exec := New(fleet, tracker, nil, nil)

	result, err := exec.Execute(context.Background(), plan("p1", "p2", "p3"), models.GenerationRequest{Prompt: "q"})
	require.NoError(t, err)

	assert.Equal(t, "p2", result.ProviderID)
	assert.Equal(t, int64(0), third.calls.Load())

	// An upstream 429 is a skip, not a failure.
	stats := tracker.Snapshot()
	assert.Zero(t, stats["p1"].FailedCalls)
}

func TestExecuteAuthAbortsPlan(t *testing.T) {
	unauthorized := newFakeBackend(t, http.StatusUnauthorized, "")
	healthy := newFakeBackend(t, http.StatusOK, "unused")

	fleet := newFleet(t,
		backendConfig("p1", unauthorized.server.URL),
		backendConfig("p2", healthy.server.URL),
	)
	exec := New(fleet, usage.NewTracker(0, 0), nil, nil)

	_, err := exec.Execute(context.Background(), plan("p1", "p2"), models.GenerationRequest{Prompt: "q"})
	require.Error(t, err)

	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.KindAuth, perr.Kind)
	assert.Equal(t, int64(0), healthy.calls.Load(), "auth failures abort the whole plan")
}

func TestExecuteAllProvidersFail(t *testing.T) {
	down1 := newFakeBackend(t, http.StatusServiceUnavailable, "")
	down2 := newFakeBackend(t, http.StatusServiceUnavailable, "")

	fleet := newFleet(t,
		backendConfig("p1", down1.server.URL),
		backendConfig("p2", down2.server.URL),
	)
	tracker := usage.NewTracker(0, 0)
	exec := New(fleet, tracker, nil, nil)

	_, err := exec.Execute(context.Background(), plan("p1", "p2"), models.GenerationRequest{Prompt: "q"})

	var allFailed *models.AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Errors, 2)
	assert.Contains(t, allFailed.Errors, "p1")
	assert.Contains(t, allFailed.Errors, "p2")

	stats := tracker.Snapshot()
	assert.Equal(t, 1, stats["p1"].FailedCalls)
	assert.Equal(t, 1, stats["p2"].FailedCalls)
}

func TestExecuteRateWindowExhausted(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, "unused")

	fleet := newFleet(t, backendConfig("p1", backend.server.URL))
	tracker := usage.NewTracker(1, 0)
	tracker.Commit(100)

	exec := New(fleet, tracker, nil, nil)
	_, err := exec.Execute(context.Background(), plan("p1"), models.GenerationRequest{Prompt: "q"})

	require.ErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, int64(0), backend.calls.Load())
	assert.Zero(t, tracker.Snapshot()["p1"].FailedCalls, "window skips never count as failures")
}

func TestExecuteEmptyPlan(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, "unused")
	fleet := newFleet(t, backendConfig("p1", backend.server.URL))

	exec := New(fleet, usage.NewTracker(0, 0), nil, nil)
	_, err := exec.Execute(context.Background(), nil, models.GenerationRequest{})
	assert.ErrorIs(t, err, models.ErrEmptyPlan)
}

func TestExecuteRecordsSuccessStats(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, "Paris.")

	cfg := backendConfig("p1", backend.server.URL)
	cfg.CostPer1KTokens = 2.0
	fleet := newFleet(t, cfg)
	tracker := usage.NewTracker(0, 0)

	exec := New(fleet, tracker, nil, nil)
	result, err := exec.Execute(context.Background(), plan("p1"), models.GenerationRequest{Prompt: "q"})
	require.NoError(t, err)

	// 30 tokens at 2.0 per thousand.
	assert.InDelta(t, 0.06, result.Cost, 1e-9)

	stats := tracker.Snapshot()["p1"]
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 0, stats.FailedCalls)
	assert.Equal(t, 30, stats.TotalTokens)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func TestExecuteDeadlineExpiresDuringLastCandidate(t *testing.T) {
	down := newFakeBackend(t, http.StatusServiceUnavailable, "")

	slow := &fakeBackend{}
	slow.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slow.calls.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"late"},"finish_reason":"stop"}],"usage":{"total_tokens":30}}`)
	}))
	t.Cleanup(slow.server.Close)

	fleet := newFleet(t,
		backendConfig("p1", down.server.URL),
		backendConfig("p2", slow.server.URL),
	)
	tracker := usage.NewTracker(0, 0)
	exec := New(fleet, tracker, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, plan("p1", "p2"), models.GenerationRequest{Prompt: "q"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var allFailed *models.AllFailedError
	assert.False(t, errors.As(err, &allFailed), "an expired deadline is not a provider exhaustion")

	stats := tracker.Snapshot()
	assert.Equal(t, 1, stats["p1"].FailedCalls)
	assert.Zero(t, stats["p2"].FailedCalls, "the interrupted call is not charged")
}

func TestExecuteContextCancelled(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, "unused")
	fleet := newFleet(t, backendConfig("p1", backend.server.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := New(fleet, usage.NewTracker(0, 0), nil, nil)
	_, err := exec.Execute(ctx, plan("p1"), models.GenerationRequest{Prompt: "q"})
	assert.True(t, errors.Is(err, context.Canceled))
}

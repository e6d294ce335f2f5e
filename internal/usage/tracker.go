// Package usage tracks request and token consumption. A sliding
// one-minute window enforces the global rate limits, and cumulative
// per-provider counters feed routing decisions and the usage report.
package usage

import (
	"sync"
	"time"

	"github.com/veriquery/veriquery/internal/models"
)

const windowSize = time.Minute

type event struct {
	at     time.Time
	tokens int
}

// ProviderStats holds cumulative counters for a single provider.
type ProviderStats struct {
	TotalCalls  int     `json:"total_calls"`
	FailedCalls int     `json:"failed_calls"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	SuccessRate float64 `json:"success_rate"`
}

// Tracker enforces rate limits and accumulates per-provider stats.
// All methods are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	window    []event
	providers map[string]*ProviderStats

	requestsPerMinute int
	tokensPerMinute   int

	now func() time.Time
}

// NewTracker creates a tracker with the given per-minute limits. A
// non-positive limit disables that dimension.
func NewTracker(requestsPerMinute, tokensPerMinute int) *Tracker {
	return &Tracker{
		providers:         make(map[string]*ProviderStats),
		requestsPerMinute: requestsPerMinute,
		tokensPerMinute:   tokensPerMinute,
		now:               time.Now,
	}
}

// Allow reports whether a request with the given estimated token cost
// fits inside the current window. It does not record anything; call
// Commit once the request has actually been dispatched.
func (t *Tracker) Allow(estimatedTokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(t.now())

	if t.requestsPerMinute > 0 && len(t.window) >= t.requestsPerMinute {
		return models.ErrRateLimited
	}
	if t.tokensPerMinute > 0 {
		total := estimatedTokens
		for _, e := range t.window {
			total += e.tokens
		}
		if total > t.tokensPerMinute {
			return models.ErrRateLimited
		}
	}
	return nil
}

// Commit records a dispatched request and its actual token usage in
// the rate window.
func (t *Tracker) Commit(tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.prune(now)
	t.window = append(t.window, event{at: now, tokens: tokens})
}

// RecordCall updates the cumulative counters for a provider. Failed
// calls count toward the failure rate; skipped providers (missing
// key, rate-limited upstream, unknown model) should not be recorded.
func (t *Tracker) RecordCall(providerID string, success bool, tokens int, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.providers[providerID]
	if stats == nil {
		stats = &ProviderStats{}
		t.providers[providerID] = stats
	}
	stats.TotalCalls++
	if !success {
		stats.FailedCalls++
	}
	stats.TotalTokens += tokens
	stats.TotalCost += cost
	stats.SuccessRate = float64(stats.TotalCalls-stats.FailedCalls) / float64(stats.TotalCalls)
}

// SuccessRate returns the historical success rate for a provider.
// Providers with no recorded calls score a full 1.0 so that new
// providers are not penalized before their first request.
func (t *Tracker) SuccessRate(providerID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.providers[providerID]
	if stats == nil || stats.TotalCalls == 0 {
		return 1.0
	}
	return stats.SuccessRate
}

// Snapshot returns a copy of the per-provider counters.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderStats, len(t.providers))
	for id, stats := range t.providers {
		out[id] = *stats
	}
	return out
}

// prune drops window events older than one minute. Caller holds the
// lock.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-windowSize)
	kept := t.window[:0]
	for _, e := range t.window {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.window = kept
}

// EstimateTokens gives a rough token count for admission control
// before the provider reports real usage: about four characters per
// token for the prompt, plus the response budget.
func EstimateTokens(prompt string, maxTokens int) int {
	return len(prompt)/4 + maxTokens
}

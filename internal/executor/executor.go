// Package executor walks a candidate plan sequentially, invoking one
// adapter at a time until a reply arrives. Candidates after the first
// success are never called, so only one provider is ever charged per
// query.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veriquery/veriquery/internal/models"
	"github.com/veriquery/veriquery/internal/observability"
	"github.com/veriquery/veriquery/internal/providers"
	"github.com/veriquery/veriquery/internal/usage"
)

// Result is a successful execution: the raw adapter reply plus the
// provider that produced it.
type Result struct {
	Response   *models.GenerationResponse
	ProviderID string
	Elapsed    time.Duration
	Cost       float64
}

// Executor drives the fallback loop over a provider fleet.
type Executor struct {
	fleet   *providers.Fleet
	tracker *usage.Tracker
	log     *zap.Logger
	tracing *observability.Tracing
}

// New creates an executor over the given fleet and usage tracker. A
// nil tracing handle disables the per-attempt spans.
func New(fleet *providers.Fleet, tracker *usage.Tracker, log *zap.Logger, tracing *observability.Tracing) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{fleet: fleet, tracker: tracker, log: log, tracing: tracing}
}

// Execute tries each plan candidate in order. The error return is one
// of models.ErrEmptyPlan, models.ErrRateLimited (every candidate was
// skipped by the usage window), a *models.ProviderError of kind auth
// (which aborts the plan), or a *models.AllFailedError once the plan
// is exhausted.
func (e *Executor) Execute(ctx context.Context, plan models.CandidatePlan, req models.GenerationRequest) (*Result, error) {
	if len(plan) == 0 {
		return nil, models.ErrEmptyPlan
	}

	failures := make(map[string]string)
	allRateLimited := true
	estimate := usage.EstimateTokens(req.Prompt, req.MaxTokens)

	for _, candidate := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.tracker.Allow(estimate); err != nil {
			e.log.Debug("candidate skipped by usage window",
				zap.String("provider", candidate.ProviderID))
			failures[candidate.ProviderID] = "skipped: usage window exhausted"
			continue
		}

		adapter, ok := e.fleet.Get(candidate.ProviderID)
		if !ok {
			allRateLimited = false
			failures[candidate.ProviderID] = "no adapter for provider"
			continue
		}

		start := time.Now()
		var resp *models.GenerationResponse
		err := e.tracing.TraceOperation(ctx, "provider.generate", func(ctx context.Context) error {
			e.tracing.SetAttributes(ctx, map[string]string{
				"provider.id": candidate.ProviderID,
			})
			var genErr error
			resp, genErr = adapter.Generate(ctx, req)
			return genErr
		})
		elapsed := time.Since(start)

		if err == nil {
			cost := float64(resp.TokensUsed) / 1000 * adapter.Config().CostPer1KTokens
			e.tracker.Commit(resp.TokensUsed)
			e.tracker.RecordCall(candidate.ProviderID, true, resp.TokensUsed, cost)
			e.log.Info("provider call succeeded",
				zap.String("provider", candidate.ProviderID),
				zap.Int("tokens", resp.TokensUsed),
				zap.Duration("elapsed", elapsed))
			return &Result{
				Response:   resp,
				ProviderID: candidate.ProviderID,
				Elapsed:    elapsed,
				Cost:       cost,
			}, nil
		}

		allRateLimited = false

		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller's deadline elapsed while this call was in
			// flight. The search is abandoned and the interrupted call
			// is not charged against the provider.
			return nil, ctxErr
		}

		var perr *models.ProviderError
		if errors.As(err, &perr) {
			if perr.Kind == models.KindAuth {
				// Bad credentials will not improve for the next
				// candidates of the same provider, and continuing
				// risks lockout. Stop here.
				e.log.Warn("provider rejected credentials, aborting plan",
					zap.String("provider", candidate.ProviderID))
				return nil, perr
			}
			if perr.CountsAsFailure() {
				e.tracker.RecordCall(candidate.ProviderID, false, 0, 0)
			}
			e.log.Warn("provider call failed",
				zap.String("provider", candidate.ProviderID),
				zap.String("kind", string(perr.Kind)),
				zap.Error(perr))
			failures[candidate.ProviderID] = perr.Error()
			continue
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		e.tracker.RecordCall(candidate.ProviderID, false, 0, 0)
		failures[candidate.ProviderID] = err.Error()
		e.log.Warn("provider call failed",
			zap.String("provider", candidate.ProviderID), zap.Error(err))
	}

	if allRateLimited {
		return nil, fmt.Errorf("plan of %d candidates: %w", len(plan), models.ErrRateLimited)
	}
	return nil, &models.AllFailedError{Errors: failures}
}

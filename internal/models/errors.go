package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies failures across the pipeline. Adapter-level
// kinds (auth, rate_limit, not_found, http, timeout, parse, config)
// travel inside ProviderError; the orchestrator surfaces the
// result-level kinds on QueryResult.
type ErrorKind string

const (
	// Adapter-level kinds.
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNotFound  ErrorKind = "not_found"
	KindHTTP      ErrorKind = "http"
	KindTimeout   ErrorKind = "timeout"
	KindParse     ErrorKind = "parse"
	KindConfig    ErrorKind = "config"

	// Result-level kinds.
	KindEthicalRejection   ErrorKind = "ethical_rejection"
	KindNoViableModel      ErrorKind = "no_viable_model"
	KindRateLimited        ErrorKind = "rate_limited"
	KindAllProvidersFailed ErrorKind = "all_providers_failed"
)

// ProviderError is a classified failure from one adapter call.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the fallback executor may continue with
// the next candidate after this error. Auth failures abort the plan.
func (e *ProviderError) Retryable() bool {
	return e.Kind != KindAuth
}

// CountsAsFailure reports whether the error should increment the
// provider's cumulative failed-call counter. Rate limits and unknown
// models are availability conditions, not provider faults.
func (e *ProviderError) CountsAsFailure() bool {
	switch e.Kind {
	case KindRateLimit, KindNotFound, KindConfig:
		return false
	}
	return true
}

// ClassifyStatus maps an HTTP status code to an adapter error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimit
	case status == 404:
		return KindNotFound
	default:
		return KindHTTP
	}
}

// AllFailedError is returned by the fallback executor when the plan
// is exhausted without success. Errors maps provider id to the last
// error message observed for it.
type AllFailedError struct {
	Errors map[string]string
}

// Error implements the error interface with a compact per-provider
// summary, ordered by provider id for stable output.
func (e *AllFailedError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, e.Errors[id]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// ErrRateLimited signals that every plan candidate was skipped by the
// usage window without any provider being attempted.
var ErrRateLimited = errors.New("all candidates skipped by rate limit window")

// ErrEmptyPlan signals that the router produced no viable candidates.
var ErrEmptyPlan = errors.New("no viable model for query")

package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/veriquery/veriquery/internal/models"
)

var (
	errMissingKey     = errors.New("api key not configured")
	errEmptyChoices   = errors.New("upstream returned no choices")
	errEmptyEmbedding = errors.New("upstream returned no embedding data")
)

// defaultRetryDelay is the in-adapter backoff between transient
// retries when the provider config does not set one.
const defaultRetryDelay = 500 * time.Millisecond

// asProviderError normalizes any error that escapes a retry loop into
// the classified taxonomy.
func asProviderError(providerID string, err error) *models.ProviderError {
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return classifyTransport(providerID, err)
}

// classifyHTTP wraps a non-2xx response into a classified provider
// error. Bodies are truncated so upstream error text cannot balloon
// logs or result payloads.
func classifyHTTP(providerID string, status int, body []byte) *models.ProviderError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	// Some providers report an unknown model as a 400 with a
	// model_not_found code in the body.
	kind := models.ClassifyStatus(status)
	if kind == models.KindHTTP && strings.Contains(strings.ToLower(msg), "model_not_found") {
		kind = models.KindNotFound
	}
	return &models.ProviderError{
		Kind:       kind,
		StatusCode: status,
		Provider:   providerID,
		Err:        fmt.Errorf("upstream returned %d: %s", status, msg),
	}
}

// classifyTransport classifies errors raised before an HTTP status was
// available: timeouts, cancellation, connection failures.
func classifyTransport(providerID string, err error) *models.ProviderError {
	kind := models.KindHTTP
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = models.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = models.KindTimeout
	}
	return &models.ProviderError{
		Kind:     kind,
		Provider: providerID,
		Err:      err,
	}
}

// classifyOpenAI translates sashabaranov/go-openai client errors into
// the adapter taxonomy.
func classifyOpenAI(providerID string, err error) *models.ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := classifyHTTP(providerID, apiErr.HTTPStatusCode, []byte(apiErr.Message))
		if apiErr.Code == "model_not_found" {
			pe.Kind = models.KindNotFound
		}
		pe.Err = err
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := classifyHTTP(providerID, reqErr.HTTPStatusCode, nil)
		pe.Err = err
		return pe
	}

	return classifyTransport(providerID, err)
}

// retryableUpstream reports whether an in-adapter retry makes sense:
// transient server faults only. Everything else surfaces immediately
// so the fallback executor can move on.
func retryableUpstream(err *models.ProviderError) bool {
	return err.Kind == models.KindHTTP && err.StatusCode >= 500
}

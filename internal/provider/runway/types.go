package runway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"motionbooth/internal/domain"
)

// Category classifies a provider error at the boundary where it occurred.
// Everything downstream branches on the category, never on raw HTTP codes.
type Category string

const (
	// CategoryContentRejected covers content/parameter rejections (HTTP 400).
	// Terminal, never retried; the reason is surfaced to the user.
	CategoryContentRejected Category = "content_rejected"
	// CategoryAuth covers credential failures (HTTP 401/403). Terminal and
	// operator-visible; not fixable by the user.
	CategoryAuth Category = "auth_failure"
	// CategoryRateLimited covers HTTP 429. Retryable after an extended delay.
	CategoryRateLimited Category = "rate_limited"
	// CategoryTransient covers 5xx, connection errors and timeouts. Retryable
	// within the caller's budget.
	CategoryTransient Category = "transient"
	// CategoryProviderFailure covers an explicit failed state reported by the
	// provider. Terminal; reason surfaced, quota refunded.
	CategoryProviderFailure Category = "provider_failure"
)

// APIError is a classified provider error.
type APIError struct {
	Category   Category
	StatusCode int
	Message    string
	Timeout    bool
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("runway: %s (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("runway: %s: %s", e.Category, e.Message)
}

// Retryable reports whether the caller may retry within its budget.
func (e *APIError) Retryable() bool {
	return e.Category == CategoryRateLimited || e.Category == CategoryTransient
}

// ClassifyErr returns the category of err, defaulting to transient for
// unclassified failures so an unexpected error never silently terminates a
// task.
func ClassifyErr(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryTransient
}

// IsTimeout reports whether err was a query timeout. A timed-out status query
// consumes one attempt but says nothing about the provider task itself.
func IsTimeout(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Timeout
	}
	return false
}

// IsRateLimited reports whether err was an HTTP 429.
func IsRateLimited(err error) bool {
	return ClassifyErr(err) == CategoryRateLimited
}

func classifyTransport(err error) *APIError {
	timeout := false
	if errors.Is(err, context.DeadlineExceeded) {
		timeout = true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		timeout = true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &APIError{Category: CategoryTransient, Message: err.Error(), Timeout: timeout}
}

func classifyHTTPStatus(status int, message string) *APIError {
	switch {
	case status == 400:
		return &APIError{Category: CategoryContentRejected, StatusCode: status, Message: message}
	case status == 401 || status == 403:
		return &APIError{Category: CategoryAuth, StatusCode: status, Message: message}
	case status == 429:
		return &APIError{Category: CategoryRateLimited, StatusCode: status, Message: message}
	case status >= 500:
		return &APIError{Category: CategoryTransient, StatusCode: status, Message: message}
	default:
		return &APIError{Category: CategoryProviderFailure, StatusCode: status, Message: message}
	}
}

// NormalizeState maps the provider's drifting state vocabulary onto the fixed
// internal enum. Unrecognized values come back as unknown; callers keep
// polling on unknown but log the raw value.
func NormalizeState(raw string) domain.ProviderState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "wait", "queueing", "queuing", "pending":
		return domain.ProviderStateWaiting
	case "generating", "processing", "running":
		return domain.ProviderStateRunning
	case "success", "succeed", "succeeded", "completed":
		return domain.ProviderStateSucceeded
	case "fail", "failed", "error":
		return domain.ProviderStateFailed
	default:
		return domain.ProviderStateUnknown
	}
}

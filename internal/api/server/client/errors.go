package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrQuotaExceeded matches, via errors.Is, any upstream failure caused by an
// exhausted usage quota or rate limit.
var ErrQuotaExceeded = errors.New("upstream quota exceeded")

// UpstreamError is a failure reported by the LLM provider itself.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.quotaExceeded()
}

func (e *UpstreamError) quotaExceeded() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch strings.ToLower(e.Status) {
	case "resource_exhausted", "insufficient_quota", "rate_limit_exceeded":
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "quota")
}

// IsQuotaExceeded reports whether err means the caller should retry later.
// Errors that are not *UpstreamError still count when their text mentions a quota.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}

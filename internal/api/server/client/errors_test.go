package client

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsQuotaExceeded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", &UpstreamError{Provider: "groq", StatusCode: http.StatusTooManyRequests, Message: "slow down"}, true},
		{"insufficient quota code", &UpstreamError{Provider: "openai", StatusCode: http.StatusForbidden, Status: "insufficient_quota"}, true},
		{"resource exhausted", &UpstreamError{Provider: "gemini", Status: "RESOURCE_EXHAUSTED"}, true},
		{"message mentions quota", &UpstreamError{Provider: "groq", StatusCode: http.StatusBadRequest, Message: "Quota reached"}, true},
		{"wrapped upstream", fmt.Errorf("relay: %w", &UpstreamError{StatusCode: http.StatusTooManyRequests}), true},
		{"plain error with quota", errors.New("daily quota used up"), true},
		{"server error", &UpstreamError{Provider: "groq", StatusCode: http.StatusInternalServerError, Message: "boom"}, false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaExceeded(tt.err))
		})
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Provider: "groq", StatusCode: 500, Message: "boom"}
	assert.EqualError(t, err, "groq: upstream returned 500: boom")

	err = &UpstreamError{Provider: "ollama", Message: "model not found"}
	assert.EqualError(t, err, "ollama: model not found")
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one message of a conversation. Position in the slice is its only identity.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorResponse is the JSON body the relay returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

var ErrInvalidTurn = errors.New("invalid chat turn")

// UnmarshalJSON rejects turns whose role or content is missing or not a string.
func (t *ChatTurn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    *string `json:"role"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTurn, err)
	}
	if raw.Role == nil {
		return fmt.Errorf("%w: missing role", ErrInvalidTurn)
	}
	if raw.Content == nil {
		return fmt.Errorf("%w: missing content", ErrInvalidTurn)
	}
	t.Role = *raw.Role
	t.Content = *raw.Content
	return nil
}

// ValidateTurns checks every role is one the upstream providers understand.
func ValidateTurns(turns []ChatTurn) error {
	for i, turn := range turns {
		switch turn.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidTurn, i, turn.Role)
		}
	}
	return nil
}

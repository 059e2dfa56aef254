package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/models"
)

const (
	quotaExceededMessage = "Quota exceeded. Please try again later or contact support."
	internalErrorMessage = "Internal Server Error"
)

// Params are the generation settings sent with every upstream request.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
}

type Handler struct {
	provider     client.Provider
	systemPrompt string
	params       Params
	upgrader     websocket.Upgrader
	log          *logger.Logger
}

func NewHandler(provider client.Provider, systemPrompt string, params Params) *Handler {
	return &Handler{
		provider:     provider,
		systemPrompt: strings.TrimSpace(systemPrompt),
		params:       params,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logger.NewLogger("Relay"),
	}
}

// Health reports which upstream the relay is bound to.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:   "ok",
		Provider: h.provider.Name(),
		Model:    h.params.Model,
	})
}

func (h *Handler) requestLogger(r *http.Request) *logger.Logger {
	return h.log.With("request_id", RequestID(r.Context()), "provider", h.provider.Name())
}

// openStream starts the upstream call and waits for its first non-empty
// fragment, so callers can still pick a status code when the provider fails
// before producing output. A nil stream with a nil error means the upstream
// finished without any text.
func (h *Handler) openStream(ctx context.Context, turns []models.ChatTurn) (string, <-chan client.Chunk, error) {
	messages := make([]models.ChatTurn, 0, len(turns)+1)
	messages = append(messages, models.ChatTurn{Role: models.RoleSystem, Content: h.systemPrompt})
	messages = append(messages, turns...)

	stream, err := h.provider.StreamChat(ctx, &client.ChatRequest{
		Model:       h.params.Model,
		Messages:    messages,
		Temperature: h.params.Temperature,
		MaxTokens:   h.params.MaxTokens,
		TopP:        h.params.TopP,
	})
	if err != nil {
		return "", nil, err
	}

	for chunk := range stream {
		if chunk.Err != nil {
			return "", nil, chunk.Err
		}
		if chunk.Text != "" {
			return chunk.Text, stream, nil
		}
	}
	return "", nil, nil
}

func decodeTurns(r io.Reader) ([]models.ChatTurn, error) {
	var turns []models.ChatTurn
	if err := json.NewDecoder(r).Decode(&turns); err != nil {
		return nil, fmt.Errorf("request body must be a JSON array of chat turns: %w", err)
	}
	if turns == nil {
		return nil, fmt.Errorf("request body must be a JSON array of chat turns")
	}
	if err := models.ValidateTurns(turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// upstreamStatus maps a failure that happened before any output to the
// status and message the caller sees.
func upstreamStatus(err error) (int, string) {
	if client.IsQuotaExceeded(err) {
		return http.StatusTooManyRequests, quotaExceededMessage
	}
	return http.StatusInternalServerError, internalErrorMessage
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/models"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) StreamChat(ctx context.Context, req *client.ChatRequest) (<-chan client.Chunk, error) {
	args := m.Called(ctx, req)
	ch, _ := args.Get(0).(<-chan client.Chunk)
	return ch, args.Error(1)
}

func chunks(items ...client.Chunk) <-chan client.Chunk {
	ch := make(chan client.Chunk, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func texts(parts ...string) <-chan client.Chunk {
	items := make([]client.Chunk, len(parts))
	for i, part := range parts {
		items[i] = client.Chunk{Text: part}
	}
	return chunks(items...)
}

var testParams = Params{Model: "llama3-8b-8192", Temperature: 1, MaxTokens: 1024, TopP: 1}

const greetingBody = `[{"role":"assistant","content":"Hi! How can I help?"},{"role":"user","content":"Hello"}]`

func newTestHandler(provider client.Provider) *Handler {
	return NewHandler(provider, "\n  Be concise.\n", testParams)
}

func postChat(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestChatStreamsFragmentsInOrder(t *testing.T) {
	provider := new(MockProvider)
	provider.On("StreamChat", mock.Anything, mock.MatchedBy(func(req *client.ChatRequest) bool {
		return len(req.Messages) == 3 &&
			req.Messages[0] == models.ChatTurn{Role: models.RoleSystem, Content: "Be concise."} &&
			req.Messages[1].Role == models.RoleAssistant &&
			req.Messages[2] == models.ChatTurn{Role: models.RoleUser, Content: "Hello"} &&
			req.Model == "llama3-8b-8192" &&
			req.Temperature == 1 &&
			req.MaxTokens == 1024 &&
			req.TopP == 1
	})).Return(texts("Hel", "lo", "", " there, ", "wörld"), nil)

	rec := postChat(newTestHandler(provider), greetingBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello there, wörld", rec.Body.String())
	assert.True(t, rec.Flushed)
	provider.AssertExpectations(t)
}

func TestChatUpstreamFailuresBeforeOutput(t *testing.T) {
	quota := &client.UpstreamError{Provider: "groq", StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
	other := errors.New("dial tcp: connection refused")

	tests := []struct {
		name       string
		stream     <-chan client.Chunk
		err        error
		wantStatus int
		wantError  string
	}{
		{"quota on request", nil, quota, http.StatusTooManyRequests, quotaExceededMessage},
		{"quota as first event", chunks(client.Chunk{Err: quota}), nil, http.StatusTooManyRequests, quotaExceededMessage},
		{"quota after empty fragment", chunks(client.Chunk{}, client.Chunk{Err: quota}), nil, http.StatusTooManyRequests, quotaExceededMessage},
		{"other error on request", nil, other, http.StatusInternalServerError, internalErrorMessage},
		{"other error as first event", chunks(client.Chunk{Err: other}), nil, http.StatusInternalServerError, internalErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			provider.On("StreamChat", mock.Anything, mock.Anything).Return(tt.stream, tt.err)

			rec := postChat(newTestHandler(provider), greetingBody)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
		})
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	bodies := map[string]string{
		"not json":        `hello`,
		"object":          `{"role":"user","content":"hi"}`,
		"null":            `null`,
		"missing content": `[{"role":"user"}]`,
		"numeric content": `[{"role":"user","content":42}]`,
		"unknown role":    `[{"role":"wizard","content":"hi"}]`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			provider := new(MockProvider)
			rec := postChat(newTestHandler(provider), body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
			provider.AssertNotCalled(t, "StreamChat", mock.Anything, mock.Anything)
		})
	}
}

func TestChatEmptyConversationStillPrependsSystemTurn(t *testing.T) {
	provider := new(MockProvider)
	provider.On("StreamChat", mock.Anything, mock.MatchedBy(func(req *client.ChatRequest) bool {
		return len(req.Messages) == 1 && req.Messages[0].Role == models.RoleSystem
	})).Return(texts(), nil)

	rec := postChat(newTestHandler(provider), `[]`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	provider.AssertExpectations(t)
}

func TestChatAbortsOnMidStreamFailure(t *testing.T) {
	provider := new(MockProvider)
	provider.On("StreamChat", mock.Anything, mock.Anything).
		Return(chunks(client.Chunk{Text: "partial "}, client.Chunk{Text: "answer"}, client.Chunk{Err: errors.New("connection reset")}), nil)

	server := httptest.NewServer(http.HandlerFunc(newTestHandler(provider).Chat))
	defer server.Close()

	resp, err := http.Post(server.URL, "application/json", strings.NewReader(greetingBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.Equal(t, "partial answer", string(body))
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(new(MockProvider)).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.HealthResponse{Status: "ok", Provider: "mock", Model: "llama3-8b-8192"}, resp)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func dialChatWS(t *testing.T, provider client.Provider) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/chat/ws", newTestHandler(provider).ChatWS)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilClose(t *testing.T, conn *websocket.Conn) (string, *websocket.CloseError) {
	t.Helper()
	var builder strings.Builder
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			return builder.String(), closeErr
		}
		builder.Write(data)
	}
}

func TestChatWSStreamsAndClosesNormally(t *testing.T) {
	provider := new(MockProvider)
	provider.On("StreamChat", mock.Anything, mock.Anything).Return(texts("Hi", "", " there"), nil)

	conn := dialChatWS(t, provider)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(greetingBody)))

	text, closeErr := readUntilClose(t, conn)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestChatWSCloseCodes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		stream   <-chan client.Chunk
		err      error
		wantCode int
	}{
		{"quota", greetingBody, nil, &client.UpstreamError{StatusCode: http.StatusTooManyRequests}, websocket.CloseTryAgainLater},
		{"internal", greetingBody, chunks(client.Chunk{Err: errors.New("boom")}), nil, websocket.CloseInternalServerErr},
		{"malformed", `{"role":"user"}`, nil, nil, websocket.CloseInvalidFramePayloadData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			provider.On("StreamChat", mock.Anything, mock.Anything).Return(tt.stream, tt.err)

			conn := dialChatWS(t, provider)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.body)))

			text, closeErr := readUntilClose(t, conn)
			assert.Empty(t, text)
			assert.Equal(t, tt.wantCode, closeErr.Code)
		})
	}
}

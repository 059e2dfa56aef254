package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/config"
	"github.com/bz888/champs/internal/models"
)

type scriptedProvider struct {
	fragments []string
	err       error
	pingErr   error
	pinged    atomic.Bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) StreamChat(ctx context.Context, req *client.ChatRequest) (<-chan client.Chunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan client.Chunk, len(p.fragments))
	for _, f := range p.fragments {
		ch <- client.Chunk{Text: f}
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Ping(ctx context.Context) error {
	p.pinged.Store(true)
	return p.pingErr
}

func testConfig() *config.Config {
	return &config.Config{
		Addr:         "127.0.0.1:0",
		SystemPrompt: "Be concise.",
		Provider:     config.ProviderGroq,
		Model:        "llama3-8b-8192",
		Temperature:  1,
		MaxTokens:    1024,
		TopP:         1,
	}
}

func TestRoutes(t *testing.T) {
	provider := &scriptedProvider{fragments: []string{"Hello", ", ", "world"}}
	server := httptest.NewServer(New(testConfig(), provider).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	var health models.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "scripted", health.Provider)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Post(server.URL+"/api/chat", "application/json", strings.NewReader(`[{"role":"user","content":"Hi"}]`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, world", string(body))

	resp, err = http.Get(server.URL + "/api/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestQuotaErrorThroughRouter(t *testing.T) {
	provider := &scriptedProvider{err: &client.UpstreamError{Provider: "groq", StatusCode: http.StatusTooManyRequests, Message: "quota"}}
	server := httptest.NewServer(New(testConfig(), provider).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/chat", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "Quota exceeded. Please try again later or contact support.", errResp.Error)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	provider := &scriptedProvider{pingErr: errors.New("connection refused")}
	s := New(testConfig(), provider)

	ln, err := s.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, provider.pinged.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenRejectsBadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "not-an-address"
	_, err := New(cfg, &scriptedProvider{}).Listen()
	assert.Error(t, err)
}

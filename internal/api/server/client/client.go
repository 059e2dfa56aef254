package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bz888/champs/internal/models"
)

// Provider streams a chat completion from an upstream LLM API.
//
// StreamChat returns an error when the request fails before any output is
// produced. Otherwise the channel yields text fragments in upstream order and
// is closed when the upstream signals completion. A Chunk with Err set is
// always the last value sent.
type Provider interface {
	Name() string
	StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error)
}

// Pinger is implemented by providers that can check their upstream is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ChatRequest struct {
	Model       string
	Messages    []models.ChatTurn
	Temperature float32
	MaxTokens   int
	TopP        float32
}

type Chunk struct {
	Text string
	Err  error
}

// Client holds what the HTTP based providers share.
type Client struct {
	name    string
	base    *url.URL
	http    *http.Client
	chatUrl *url.URL
	headers map[string]string
}

// ClientConfig holds the configuration for the client
type ClientConfig struct {
	Name       string
	BaseURL    string
	ChatPath   string
	Headers    map[string]string
	HTTPClient *http.Client
}

// NewClient creates a new API client with configurable base URL and chat endpoint
func NewClient(config ClientConfig) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse %s base url: %w", config.Name, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%s base url %q must be absolute", config.Name, config.BaseURL)
	}

	chatURL := *baseURL
	chatURL.Path = baseURL.Path + "/" + strings.TrimLeft(config.ChatPath, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No overall timeout: a reply may stream for as long as the upstream keeps it open.
		httpClient = &http.Client{}
	}

	return &Client{
		name:    config.Name,
		base:    baseURL,
		http:    httpClient,
		chatUrl: &chatURL,
		headers: config.Headers,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) GetChatURL() string {
	return c.chatUrl.String()
}

// post sends payload to the chat endpoint and returns the open response.
// Any non-200 answer is turned into an *UpstreamError.
func (c *Client) post(ctx context.Context, payload any, accept string) (*http.Response, error) {
	bts, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", c.name, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GetChatURL(), bytes.NewReader(bts))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.name, err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", accept)
	for k, v := range c.headers {
		request.Header.Set(k, v)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}

	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		return nil, c.decodeError(response)
	}
	return response, nil
}

func (c *Client) decodeError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))

	upstreamErr := &UpstreamError{
		Provider:   c.name,
		StatusCode: response.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var errResp map[string]interface{}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return upstreamErr
	}
	switch e := errResp["error"].(type) {
	case string:
		upstreamErr.Message = e
	case map[string]interface{}:
		if message, ok := e["message"].(string); ok {
			upstreamErr.Message = message
		}
		if code, ok := e["code"].(string); ok {
			upstreamErr.Status = code
		} else if status, ok := e["status"].(string); ok {
			upstreamErr.Status = status
		}
	}
	return upstreamErr
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return scanner
}

// emit delivers a chunk unless the consumer has gone away.
func emit(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

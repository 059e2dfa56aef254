package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient represents a client for a local Ollama server
type OllamaClient struct {
	*Client
}

// NewOllamaClient creates a new Ollama API client. host is "host:port" or a full URL.
func NewOllamaClient(host string, httpClient *http.Client) (*OllamaClient, error) {
	baseURL := host
	if !strings.Contains(host, "://") {
		baseURL = "http://" + host
	}
	c, err := NewClient(ClientConfig{
		Name:       "ollama",
		BaseURL:    baseURL,
		ChatPath:   "/api/chat",
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &OllamaClient{Client: c}, nil
}

type OllamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []OpenAIChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  OllamaOptions       `json:"options"`
}

type OllamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type OllamaAPIResponse struct {
	Model   string            `json:"model"`
	Message OpenAIChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// Ping checks the Ollama server answers on its root URL.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama server not available: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama server not available: %s", resp.Status)
	}
	return nil
}

// StreamChat posts to /api/chat and forwards message.content from each NDJSON line.
func (c *OllamaClient) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	apiReq := OllamaChatRequest{
		Model:    req.Model,
		Messages: toChatMessages(req.Messages),
		Stream:   true,
		Options: OllamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}

	response, err := c.post(ctx, &apiReq, "application/x-ndjson")
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer response.Body.Close()

		scanner := newScanner(response.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}

			var apiResp OllamaAPIResponse
			if err := json.Unmarshal(line, &apiResp); err != nil {
				emit(ctx, ch, Chunk{Err: fmt.Errorf("decode ollama chunk: %w", err)})
				return
			}
			if apiResp.Error != "" {
				emit(ctx, ch, Chunk{Err: &UpstreamError{Provider: c.name, Message: apiResp.Error}})
				return
			}
			if apiResp.Message.Content != "" {
				if !emit(ctx, ch, Chunk{Text: apiResp.Message.Content}) {
					return
				}
			}
			if apiResp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, ch, Chunk{Err: fmt.Errorf("read ollama stream: %w", err)})
		}
	}()

	return ch, nil
}

var (
	_ Provider = (*OllamaClient)(nil)
	_ Pinger   = (*OllamaClient)(nil)
)

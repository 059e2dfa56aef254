package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bz888/champs/internal/models"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// OpenAIClient talks to any OpenAI compatible Chat Completions API
// (OpenAI itself, Groq).
type OpenAIClient struct {
	*Client
}

// NewOpenAIClient creates a client for an OpenAI compatible API. name is used
// in logs and errors only.
func NewOpenAIClient(name, baseURL, apiKey string, httpClient *http.Client) (*OpenAIClient, error) {
	c, err := NewClient(ClientConfig{
		Name:     name,
		BaseURL:  baseURL,
		ChatPath: "/chat/completions",
		Headers: map[string]string{
			"Authorization": "Bearer " + apiKey,
		},
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &OpenAIClient{Client: c}, nil
}

type OpenAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenAIChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature float32             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	TopP        float32             `json:"top_p"`
}

type OpenAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Error   *OpenAIError       `json:"error,omitempty"`
}

type OpenAIChatChoice struct {
	Delta        OpenAIChatDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason,omitempty"` // Pointer to handle null
	Index        int             `json:"index"`
}

type OpenAIChatDelta struct {
	Content *string `json:"content,omitempty"` // Pointer to handle null
	Role    *string `json:"role,omitempty"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

var (
	sseDataPrefix = []byte("data:")
	sseDone       = []byte("[DONE]")
)

// StreamChat posts the conversation with stream=true and forwards every
// non-empty delta.content from the server-sent events.
func (c *OpenAIClient) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	apiReq := OpenAIChatRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	response, err := c.post(ctx, &apiReq, "text/event-stream")
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		defer response.Body.Close()

		scanner := newScanner(response.Body)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 || !bytes.HasPrefix(line, sseDataPrefix) {
				continue
			}
			data := bytes.TrimSpace(bytes.TrimPrefix(line, sseDataPrefix))
			if bytes.Equal(data, sseDone) {
				return
			}

			var apiResp OpenAIChatResponse
			if err := json.Unmarshal(data, &apiResp); err != nil {
				emit(ctx, ch, Chunk{Err: fmt.Errorf("decode %s chunk: %w", c.name, err)})
				return
			}
			if apiResp.Error != nil {
				emit(ctx, ch, Chunk{Err: &UpstreamError{
					Provider: c.name,
					Status:   apiResp.Error.Type,
					Message:  apiResp.Error.Message,
				}})
				return
			}

			for _, choice := range apiResp.Choices {
				if choice.Delta.Content == nil || *choice.Delta.Content == "" {
					continue
				}
				if !emit(ctx, ch, Chunk{Text: *choice.Delta.Content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, ch, Chunk{Err: fmt.Errorf("read %s stream: %w", c.name, err)})
		}
	}()

	return ch, nil
}

func toChatMessages(turns []models.ChatTurn) []OpenAIChatMessage {
	messages := make([]OpenAIChatMessage, len(turns))
	for i, turn := range turns {
		messages[i] = OpenAIChatMessage{Role: turn.Role, Content: turn.Content}
	}
	return messages
}

var _ Provider = (*OpenAIClient)(nil)

package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/bz888/champs/internal/models"
)

type generateContentStream func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

// GeminiClient streams completions through the Google GenAI SDK.
type GeminiClient struct {
	stream generateContentStream
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiClient{stream: client.Models.GenerateContentStream}, nil
}

func (g *GeminiClient) Name() string {
	return "gemini"
}

// StreamChat maps system turns onto the system instruction and the rest onto
// user/model contents. Errors, including ones raised before the first token,
// arrive on the channel.
func (g *GeminiClient) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	system, contents := toGeminiContents(req.Messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		TopP:            genai.Ptr(req.TopP),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if system != nil {
		config.SystemInstruction = system
	}

	seq := g.stream(ctx, req.Model, contents, config)

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for resp, err := range seq {
			if err != nil {
				emit(ctx, ch, Chunk{Err: geminiError(err)})
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !emit(ctx, ch, Chunk{Text: text}) {
				return
			}
		}
	}()

	return ch, nil
}

func toGeminiContents(turns []models.ChatTurn) (*genai.Content, []*genai.Content) {
	var instructions []string
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == models.RoleSystem {
			instructions = append(instructions, turn.Content)
			continue
		}
		content := &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: turn.Content}},
		}
		if turn.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}
		contents = append(contents, content)
	}

	if len(instructions) == 0 {
		return nil, contents
	}
	return &genai.Content{
		Parts: []*genai.Part{{Text: strings.Join(instructions, "\n")}},
	}, contents
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("gemini stream: %w", err)
}

var _ Provider = (*GeminiClient)(nil)

package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"aichat/internal/model"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Turn is one role-tagged unit of conversation content. ImageURLs turns the
// content into a multimodal message with image parts keyed by retrieval URL.
type Turn struct {
	Role      string
	Content   string
	ImageURLs []string
}

type Client struct {
	api          *openai.Client
	defaultModel string
}

func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:          openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.Model,
	}
}

// StreamCompletion opens a streaming completion and relays every text
// fragment to onDelta in arrival order. The returned usage is the provider's
// final accounting; it is zero if the stream ended before the usage chunk.
// An error from onDelta aborts the stream and is returned unwrapped so the
// caller can tell its own failures apart from provider ones.
func (c *Client) StreamCompletion(
	ctx context.Context,
	modelID string,
	turns []Turn,
	onDelta func(delta string) error,
) (model.TokenUsage, error) {
	if modelID == "" {
		modelID = c.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:         modelID,
		Messages:      buildMessages(turns),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	s, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return model.TokenUsage{}, fmt.Errorf("open completion stream failed: %w", err)
	}
	defer s.Close()

	var usage model.TokenUsage
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("receive completion chunk failed: %w", err)
		}
		if chunk.Usage != nil {
			usage = model.TokenUsage{
				Input:  chunk.Usage.PromptTokens,
				Output: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return usage, err
		}
	}
}

// GenerateTitle produces a short semantic title for a conversation from its
// first user message. Low temperature keeps the output stable.
func (c *Client) GenerateTitle(ctx context.Context, seed string) (string, error) {
	if len(seed) > 500 {
		seed = seed[:500]
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.defaultModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You generate short conversation titles. Reply with the title only, no punctuation, no explanation.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Generate a concise title (3 to 8 words) for a conversation that starts with:\n\n" + seed,
			},
		},
		MaxTokens:   50,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("generate title failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate title returned no choices")
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	title = strings.Trim(title, `"'`)
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:60])
	}
	return title, nil
}

func buildMessages(turns []Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		if len(t.ImageURLs) == 0 {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    t.Role,
				Content: t.Content,
			})
			continue
		}

		parts := []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: t.Content},
		}
		for _, url := range t.ImageURLs {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    url,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:         t.Role,
			MultiContent: parts,
		})
	}
	return messages
}

package titlegen

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const titleSystemPrompt = "Write a short title (at most six words) for the " +
	"following conversation. Reply with the title only, no quotes."

// OpenAIGenerator produces titles with an OpenAI-compatible chat model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator against an OpenAI-compatible API.
// baseURL may be empty for the default endpoint; model defaults to
// gpt-4o-mini.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, conversation string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: conversation},
		},
		MaxTokens: 32,
	})
	if err != nil {
		return "", fmt.Errorf("title completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyTitle
	}

	title := strings.TrimSpace(strings.Trim(resp.Choices[0].Message.Content, `"`))
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

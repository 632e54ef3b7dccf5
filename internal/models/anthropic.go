package models

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompletion answers prompts with the messages API.
type AnthropicCompletion struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompletion returns an adapter for o.CompletionModel.
func NewAnthropicCompletion(o Options) *AnthropicCompletion {
	opts := []option.RequestOption{
		option.WithAPIKey(o.AnthropicAPIKey),
		option.WithMaxRetries(o.MaxRetries),
	}
	if o.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.AnthropicBaseURL))
	}
	if o.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.RequestTimeout))
	}
	return &AnthropicCompletion{client: anthropic.NewClient(opts...), model: o.CompletionModel}
}

// Complete implements TextCompletion. Text blocks are concatenated.
func (c *AnthropicCompletion) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Model: anthropic.Model(c.model),
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", stderrors.New("completion returned no text")
	}
	return strings.TrimSpace(sb.String()), nil
}

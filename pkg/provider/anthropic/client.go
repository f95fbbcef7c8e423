// Package anthropic provides the Claude backend adapter.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
)

// Client wraps the Anthropic SDK to implement provider.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a raw Claude client; middleware is applied by the factory.
func New(apiKey, model string) provider.Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Generate implements provider.Client.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Response{}, providererr.New(providererr.KindBadRequest, "empty prompt")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return provider.Response{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "empty response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "no text content in Claude response")
	}

	prompt := int(resp.Usage.InputTokens)
	completion := int(resp.Usage.OutputTokens)
	return provider.Response{
		Content:          text.String(),
		Model:            string(c.model),
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TokensUsed:       prompt + completion,
		FinishReason:     string(resp.StopReason),
	}, nil
}

// ModelName implements provider.Client.
func (c *Client) ModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to the shared taxonomy. The SDK
// surfaces status codes inside error strings, so classification combines
// context errors, status extraction, and message patterns.
func classifyError(err error) *providererr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return providererr.NewWithCause(providererr.KindTimeout, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return providererr.NewWithCause(providererr.KindTimeout, err, "request canceled")
	}
	if status := providererr.ExtractStatusCode(err.Error()); status != 0 {
		return providererr.FromStatus(status, err)
	}
	return providererr.Classify(err)
}

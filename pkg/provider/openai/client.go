// Package openai provides the OpenAI backend adapter using the official
// Go SDK's Responses API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
)

// Client wraps the official OpenAI Go client to implement provider.Client.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw OpenAI client; middleware is applied by the factory.
func New(apiKey, model string) provider.Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate implements provider.Client.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Response{}, providererr.New(providererr.KindBadRequest, "empty prompt")
	}

	// The Responses API takes a single input string; fold the system
	// instruction in the same way the chat-style APIs would present it.
	input := req.Prompt
	if req.System != "" {
		input = fmt.Sprintf("System: %s\n\n%s", req.System, req.Prompt)
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
		Temperature:     openai.Float(float64(req.Temperature)),
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return provider.Response{}, providererr.Classify(err)
	}
	if resp == nil {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "nil response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "no text output in OpenAI response")
	}

	prompt := int(resp.Usage.InputTokens)
	completion := int(resp.Usage.OutputTokens)
	return provider.Response{
		Content:          content,
		Model:            c.model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TokensUsed:       prompt + completion,
		FinishReason:     string(resp.Status),
	}, nil
}

// ModelName implements provider.Client.
func (c *Client) ModelName() string {
	return c.model
}

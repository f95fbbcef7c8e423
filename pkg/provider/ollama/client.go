// Package ollama provides the adapter for locally served open models via
// the Ollama runtime.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
)

// Client wraps the Ollama API client to implement provider.Client.
type Client struct {
	client *api.Client
	model  string
}

// New creates a raw Ollama client for the given server URL; middleware is
// applied by the factory. An unparseable URL falls back to localhost.
func New(hostURL, model string) provider.Client {
	parsed, err := url.Parse(hostURL)
	if err != nil || parsed.Scheme == "" {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Generate implements provider.Client.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Response{}, providererr.New(providererr.KindBadRequest, "empty prompt")
	}

	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var last api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return provider.Response{}, classifyError(err)
	}
	if last.Message.Content == "" {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "no content in Ollama response")
	}

	return provider.Response{
		Content:          last.Message.Content,
		Model:            c.model,
		PromptTokens:     last.PromptEvalCount,
		CompletionTokens: last.EvalCount,
		TokensUsed:       last.PromptEvalCount + last.EvalCount,
		FinishReason:     finishReason(&last),
	}, nil
}

// ModelName implements provider.Client.
func (c *Client) ModelName() string {
	return c.model
}

func finishReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError maps Ollama errors to the shared taxonomy. A local server
// has its own failure modes: the common one is the daemon not running.
func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return providererr.NewWithCause(providererr.KindNetwork, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return providererr.NewWithCause(providererr.KindBadRequest, fmt.Errorf("model not found: %w", err), "unknown Ollama model")
	default:
		return providererr.Classify(err)
	}
}

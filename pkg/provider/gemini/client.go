// Package gemini provides the Google Gemini backend adapter. Gemini is the
// only wired backend that accepts attached media, so multimodal tasks
// normally route here.
package gemini

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
)

// Client wraps the Google GenAI client to implement provider.Client.
type Client struct {
	initOnce sync.Once
	client   *genai.Client
	initErr  error
	apiKey   string
	model    string
}

// New creates a raw Gemini client; middleware is applied by the factory.
// The underlying SDK client needs a context, so it is created lazily on
// the first Generate call.
func New(apiKey, model string) provider.Client {
	return &Client{apiKey: apiKey, model: model}
}

// Generate implements provider.Client.
func (c *Client) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Response{}, providererr.New(providererr.KindBadRequest, "empty prompt")
	}

	// Concurrent calls from the parallel strategy share this client, so
	// lazy construction must happen exactly once.
	c.initOnce.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if c.initErr != nil {
		return provider.Response{}, providererr.NewWithCause(providererr.KindAuth, c.initErr, "create Gemini client")
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	for _, ref := range req.Media {
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{FileURI: ref},
		})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	//nolint:gosec // MaxTokens validated at config load, overflow not reachable
	maxTokens := int32(req.MaxTokens)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &req.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return provider.Response{}, providererr.Classify(err)
	}
	if result == nil {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "nil response from Gemini API")
	}

	content := result.Text()
	if content == "" {
		return provider.Response{}, providererr.New(providererr.KindEmptyResponse, "no text in Gemini response")
	}

	resp := provider.Response{
		Content:      content,
		Model:        c.model,
		FinishReason: finishReason(result),
	}
	if usage := result.UsageMetadata; usage != nil {
		resp.PromptTokens = int(usage.PromptTokenCount)
		resp.CompletionTokens = int(usage.CandidatesTokenCount)
		resp.TokensUsed = int(usage.TotalTokenCount)
	}
	return resp, nil
}

// ModelName implements provider.Client.
func (c *Client) ModelName() string {
	return c.model
}

// finishReason extracts the candidate finish reason, defaulting to
// "end_turn" for normally completed generations.
func finishReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
		return string(result.Candidates[0].FinishReason)
	}
	return "end_turn"
}

// Package provider defines the uniform adapter interface every
// text-generation backend implements, plus middleware chaining. The
// registry and orchestrator depend only on this interface, never on a
// backend SDK directly.
package provider

import (
	"context"
	"time"
)

const (
	// TemperatureDefault is used when neither the agent descriptor nor the
	// task context sets a temperature.
	TemperatureDefault = 0.7

	// MaxTokensDefault is the output budget used when nothing overrides it.
	MaxTokensDefault = 8192
)

// Request carries one generation call to a backend.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type Request struct {
	Prompt      string
	System      string   // optional system-level instruction
	Media       []string // optional attached media references (multimodal backends)
	MaxTokens   int
	Temperature float32
}

// Response is a backend's answer to one Request.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TokensUsed       int // prompt + completion when the backend reports usage, estimated otherwise
	FinishReason     string
	Latency          time.Duration
}

// Client is the uniform call interface implemented once per backend.
type Client interface {
	// Generate performs one completion call. Errors are classified
	// providererr values distinguishing transient from permanent failures.
	Generate(ctx context.Context, req Request) (Response, error)

	// ModelName returns the backend model identifier this client calls.
	ModelName() string
}

// Middleware wraps a Client with additional behavior. Compose with Chain.
type Middleware func(next Client) Client

// clientFunc adapts plain functions to the Client interface for middleware.
type clientFunc struct {
	generate  func(context.Context, Request) (Response, error)
	modelName func() string
}

func (f *clientFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f.generate(ctx, req)
}

func (f *clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient builds a Client from function implementations. Middleware
// packages use it to wrap the next client in the chain. The returned
// Client has a pointer dynamic type so cached instances compare by
// identity.
func WrapClient(generate func(context.Context, Request) (Response, error), modelName func() string) Client {
	return &clientFunc{generate: generate, modelName: modelName}
}

// Chain composes middlewares around a base client. Earlier middlewares are
// outermost: Chain(client, mw1, mw2) yields the call stack mw1 -> mw2 ->
// client, so mw1 sees the request first and the response last.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}

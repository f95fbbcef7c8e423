// Package factory constructs backend clients with their middleware chain.
// It is the only place that knows which SDK serves which provider; the
// orchestrator sees provider.Client and nothing else.
package factory

import (
	"fmt"
	"sync"
	"time"

	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/provider"
	"conductor/pkg/provider/anthropic"
	"conductor/pkg/provider/gemini"
	"conductor/pkg/provider/middleware/calllog"
	"conductor/pkg/provider/middleware/observe"
	"conductor/pkg/provider/middleware/timeout"
	"conductor/pkg/provider/ollama"
	"conductor/pkg/provider/openai"
)

// Factory builds and caches one chained client per agent.
type Factory struct {
	mu          sync.Mutex
	clients     map[string]provider.Client
	callTimeout time.Duration
	recorder    metrics.Recorder
	logger      *logx.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithRecorder wires a metrics recorder into every client chain.
func WithRecorder(r metrics.Recorder) Option {
	return func(f *Factory) {
		f.recorder = r
	}
}

// New creates a factory applying the given per-call timeout backstop.
func New(callTimeout time.Duration, opts ...Option) *Factory {
	f := &Factory{
		clients:     make(map[string]provider.Client),
		callTimeout: callTimeout,
		recorder:    metrics.Nop(),
		logger:      logx.NewLogger("provider"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ClientFor returns the chained client for an agent, constructing it on
// first use. The provider is inferred from the model name and the
// credential resolved from the environment at construction time.
func (f *Factory) ClientFor(agentID, model string) (provider.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[agentID]; ok {
		return client, nil
	}

	prov, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, err)
	}
	apiKey, err := config.GetAPIKey(prov)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, err)
	}

	var raw provider.Client
	switch prov {
	case config.ProviderAnthropic:
		raw = anthropic.New(apiKey, model)
	case config.ProviderOpenAI:
		raw = openai.New(apiKey, model)
	case config.ProviderGoogle:
		raw = gemini.New(apiKey, model)
	case config.ProviderOllama:
		raw = ollama.New(apiKey, model) // apiKey carries the host URL for Ollama
	default:
		return nil, fmt.Errorf("agent %s: unsupported provider %s", agentID, prov)
	}

	// Observe -> calllog -> timeout -> raw client. Retry deliberately has
	// no place in this chain: the fallback strategy owns retries.
	client := provider.Chain(raw,
		observe.Middleware(agentID, f.recorder),
		calllog.Middleware(agentID, f.logger),
		timeout.Middleware(f.callTimeout),
	)
	f.clients[agentID] = client
	return client, nil
}

// Register pre-wires a client for an agent, replacing any cached one.
// Tests use it to install mock clients; runtime reconfiguration uses it
// when an agent's model changes.
func (f *Factory) Register(agentID string, client provider.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[agentID] = client
}

// Evict drops the cached client for an agent.
func (f *Factory) Evict(agentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, agentID)
}

package orchestrator

import (
	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/provider/factory"
	"conductor/pkg/registry"
	"conductor/pkg/task"
)

// Engine bundles a registry, a client factory, and an orchestrator
// assembled from one configuration. It is the entry point the CLI and
// embedding programs use.
type Engine struct {
	Registry     *registry.Registry
	Clients      *factory.Factory
	Orchestrator *Orchestrator
}

// NewEngine builds a fully wired engine from a validated config,
// registering every configured agent. Pass metrics.Nop() when no
// metrics backend is wanted.
func NewEngine(cfg *config.Config, recorder metrics.Recorder) (*Engine, error) {
	reg := registry.New(registry.WithRecorder(recorder))

	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		prov, err := config.GetModelProvider(a.Model)
		if err != nil {
			// Validate catches this at load time; re-check for configs
			// assembled programmatically.
			return nil, logx.Errorf("engine: agent %q: %w", a.ID, err)
		}

		caps := make(map[task.Capability]bool, len(a.Capabilities))
		for _, c := range a.Capabilities {
			caps[task.Capability(c)] = true
		}

		desc := registry.Descriptor{
			ID:           a.ID,
			Provider:     prov,
			Model:        a.Model,
			Priority:     a.Priority,
			Enabled:      a.IsEnabled(),
			Capabilities: caps,
			Temperature:  a.Temperature,
			MaxTokens:    a.MaxTokens,
		}
		if err := reg.Register(desc); err != nil {
			return nil, logx.Wrap(err, "engine: register agents")
		}
	}

	clients := factory.New(cfg.Defaults.CallTimeout, factory.WithRecorder(recorder))
	return &Engine{
		Registry:     reg,
		Clients:      clients,
		Orchestrator: New(reg, clients, cfg.Defaults),
	}, nil
}

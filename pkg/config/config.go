// Package config loads and validates the startup configuration: the agent
// descriptor list and engine defaults. Credentials are resolved from the
// environment at client-construction time and never stored here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"conductor/pkg/task"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 8192
	DefaultCallTimeout      = 120 * time.Second
	DefaultFallbackAttempts = 3
)

// AgentConfig describes one backend agent in the config file.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Model        string   `yaml:"model"`
	Priority     int      `yaml:"priority"`
	Enabled      *bool    `yaml:"enabled"` // nil means enabled
	Capabilities []string `yaml:"capabilities"`
	Temperature  float32  `yaml:"temperature"` // 0 means engine default
	MaxTokens    int      `yaml:"max_tokens"`  // 0 means engine default
}

// IsEnabled reports the effective enabled flag.
func (a *AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// EngineDefaults holds orchestrator-wide tuning values.
type EngineDefaults struct {
	Temperature      float32       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	FallbackAttempts int           `yaml:"fallback_attempts"`
}

// Config is the full startup configuration.
type Config struct {
	Agents     []AgentConfig  `yaml:"agents"`
	Defaults   EngineDefaults `yaml:"defaults"`
	OllamaHost string         `yaml:"ollama_host"` // overrides OLLAMA_HOST when set
}

// Load reads, parses, and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML config data, applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.Temperature == 0 {
		c.Defaults.Temperature = DefaultTemperature
	}
	if c.Defaults.MaxTokens == 0 {
		c.Defaults.MaxTokens = DefaultMaxTokens
	}
	if c.Defaults.CallTimeout == 0 {
		c.Defaults.CallTimeout = DefaultCallTimeout
	}
	if c.Defaults.FallbackAttempts == 0 {
		c.Defaults.FallbackAttempts = DefaultFallbackAttempts
	}
	if c.OllamaHost != "" {
		// Make the override visible to GetAPIKey's env lookup.
		os.Setenv(EnvOllamaHost, c.OllamaHost) //nolint:errcheck // Setenv cannot fail for valid keys
	}
}

// Validate checks structural invariants: unique agent ids, at least one
// known capability per agent, resolvable providers, sane parameters.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: no agents defined")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.ID == "" {
			return fmt.Errorf("config: agent %d has no id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		if a.Model == "" {
			return fmt.Errorf("config: agent %q has no model", a.ID)
		}
		if _, err := GetModelProvider(a.Model); err != nil {
			return fmt.Errorf("config: agent %q: %w", a.ID, err)
		}
		if len(a.Capabilities) == 0 {
			return fmt.Errorf("config: agent %q declares no capabilities", a.ID)
		}
		for _, capName := range a.Capabilities {
			if !task.KnownCapabilities[task.Capability(capName)] {
				return fmt.Errorf("config: agent %q declares unknown capability %q", a.ID, capName)
			}
		}
		if a.Priority < 0 {
			return fmt.Errorf("config: agent %q priority must not be negative", a.ID)
		}
		if a.Temperature < 0 || a.Temperature > 2.0 {
			return fmt.Errorf("config: agent %q temperature %.2f out of range [0, 2]", a.ID, a.Temperature)
		}
		if a.MaxTokens < 0 {
			return fmt.Errorf("config: agent %q max_tokens must not be negative", a.ID)
		}
	}

	if c.Defaults.FallbackAttempts < 1 {
		return fmt.Errorf("config: fallback_attempts must be at least 1")
	}
	return nil
}

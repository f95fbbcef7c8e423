package config

import (
	"fmt"
	"os"
	"strings"
)

// API providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding credentials. Credential values never enter
// the registry data model; descriptors carry only the provider reference.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// ModelInfo contains static information about a known model. Hardcoded in
// the application, not user-configurable.
type ModelInfo struct {
	Provider         string
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels maps common model names to provider and limits. Unknown
// models fall back to prefix inference via ProviderPatterns.
//
//nolint:gochecknoglobals // Static model registry
var KnownModels = map[string]ModelInfo{
	// Anthropic
	"claude-sonnet-4-5":     {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-opus-4-5":       {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 16384},
	"claude-3-7-sonnet":     {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},

	// OpenAI
	"gpt-4o":  {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"gpt-5":   {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"o3":      {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"o3-mini": {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},

	// Google
	"gemini-2.0-flash": {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 8192},
	"gemini-2.5-flash": {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
}

// ProviderPattern infers a provider from a model name prefix, so new
// models work without code changes.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // Static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Ollama-served open models
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a model name, checking
// KnownModels first and prefix patterns second.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model %q: no provider mapping or pattern match", modelName)
}

// GetModelInfo returns model limits, with conservative defaults for models
// not in KnownModels. The second return reports whether the model was known.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// GetAPIKey resolves the credential for a provider from the environment.
// For Ollama it returns the host URL instead, defaulting to localhost.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("missing API key: set %s", envVar)
	}
	return key, nil
}

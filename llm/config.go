// Package llm calls a hosted language model to extract product records from
// page text when the structural heuristics find nothing.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey is returned when no credential can be resolved.
var ErrMissingAPIKey = errors.New("llm: api key required (flag, ANTHROPIC_API_KEY or OPENAI_API_KEY)")

// Provider selects the wire format.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"

	defaultAnthropicURL = "https://api.anthropic.com"
	defaultOpenAIURL    = "https://api.openai.com/v1"

	anthropicKeyPrefix = "sk-ant-"
)

// Config is the credential and tuning set for one run. It is passed
// explicitly to NewClient; nothing in this package reads the environment
// after ResolveConfig returns.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	ChunkTokens int
	Overlap     float64
}

// Validate checks c can be used to build a client.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("llm: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("llm: model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm: max tokens must be positive")
	}
	if c.ChunkTokens <= 0 {
		return fmt.Errorf("llm: chunk tokens must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= 1 {
		return fmt.Errorf("llm: overlap must be in [0, 1)")
	}
	return nil
}

// ResolveConfig builds the run's configuration. Precedence:
//  1. an explicit provider (optionally "provider/model") with the explicit
//     key or the provider's environment key
//  2. an explicit key, whose prefix picks the provider
//  3. ANTHROPIC_API_KEY, then OPENAI_API_KEY
//
// getenv is usually os.Getenv.
func ResolveConfig(provider, model, apiKey string, getenv func(string) string) (Config, error) {
	cfg := Config{
		MaxTokens:   8000,
		Temperature: 0,
		ChunkTokens: 8000,
		Overlap:     0.1,
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	switch {
	case provider != "":
		name, providerModel, _ := strings.Cut(provider, "/")
		p, err := parseProvider(name)
		if err != nil {
			return Config{}, err
		}
		cfg.Provider = p
		if model == "" {
			model = providerModel
		}
		if apiKey == "" {
			apiKey = getenv(envKey(p))
		}
	case apiKey != "":
		cfg.Provider = ProviderOpenAI
		if strings.HasPrefix(apiKey, anthropicKeyPrefix) {
			cfg.Provider = ProviderAnthropic
		}
	case getenv("ANTHROPIC_API_KEY") != "":
		cfg.Provider = ProviderAnthropic
		apiKey = getenv("ANTHROPIC_API_KEY")
	case getenv("OPENAI_API_KEY") != "":
		cfg.Provider = ProviderOpenAI
		apiKey = getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	cfg.APIKey = apiKey
	cfg.Model = model
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.Provider)
	}
	cfg.BaseURL = defaultBaseURL(cfg.Provider)
	return cfg, nil
}

func parseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	}
	return "", fmt.Errorf("llm: unknown provider %q", name)
}

func envKey(p Provider) string {
	if p == ProviderAnthropic {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func defaultModel(p Provider) string {
	if p == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultOpenAIModel
}

func defaultBaseURL(p Provider) string {
	if p == ProviderAnthropic {
		return defaultAnthropicURL
	}
	return defaultOpenAIURL
}

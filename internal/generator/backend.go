package generator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 3000

	deepSeekBaseURL = "https://api.deepseek.com/v1"
)

// Config selects and tunes the model backend.
type Config struct {
	Provider    string        `toml:"provider"`
	Model       string        `toml:"model"`
	APIKey      string        `toml:"api_key"`
	BaseURL     string        `toml:"base_url"`
	Temperature float64       `toml:"temperature"`
	MaxTokens   int64         `toml:"max_tokens"`
	Timeout     time.Duration `toml:"timeout"`
}

// Backend issues one chat-style request and returns the raw text reply.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// ResolveProvider returns the explicit provider, or derives one from the
// model name when none is configured.
func ResolveProvider(provider, model string) string {
	if provider != "" {
		return strings.ToLower(provider)
	}
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "deepseek"):
		return ProviderDeepSeek
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

// NewBackend builds the backend for cfg.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch provider := ResolveProvider(cfg.Provider, cfg.Model); provider {
	case ProviderOpenAI:
		return newOpenAIBackend(ProviderOpenAI, cfg), nil
	case ProviderDeepSeek:
		if cfg.BaseURL == "" {
			cfg.BaseURL = deepSeekBaseURL
		}
		return newOpenAIBackend(ProviderDeepSeek, cfg), nil
	case ProviderAnthropic:
		return newAnthropicBackend(cfg), nil
	case ProviderGemini:
		return newGeminiBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", provider)
	}
}

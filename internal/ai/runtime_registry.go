package ai

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(context.Context, RuntimeConfig) (Runtime, error)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Hosted providers
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// Providers lists the registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewRuntime creates a Runtime for the given provider.
func NewRuntime(ctx context.Context, name string, cfg RuntimeConfig) (Runtime, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownProvider, name, Providers())
	}
	return f(ctx, cfg)
}

func openAICompatible(provider string) RuntimeFactory {
	return func(_ context.Context, c RuntimeConfig) (Runtime, error) {
		if c.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
		}
		return NewClientWithBaseURL(provider, c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, c.BaseURL), nil
	}
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderGroq, openAICompatible(ProviderGroq))
	RegisterRuntime(ProviderOpenRouter, openAICompatible(ProviderOpenRouter))
	RegisterRuntime(ProviderOllama, func(_ context.Context, c RuntimeConfig) (Runtime, error) {
		host := c.Host
		if host == "" {
			host = c.BaseURL
		}
		return NewOllamaClient(host, c.HTTPTimeout, c.RetryMax, c.BaseDelay), nil
	})
	RegisterRuntime(ProviderGemini, func(ctx context.Context, c RuntimeConfig) (Runtime, error) {
		return NewGeminiClient(ctx, c.APIKey, c.BaseURL, c.HTTPTimeout)
	})
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/ai"
	cfgpkg "github.com/KaramelBytes/tabletalk/internal/config"
	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
	"github.com/KaramelBytes/tabletalk/internal/oracle"
)

// normalizeProvider maps aliases onto registered provider names.
func normalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "groq":
		return ai.ProviderGroq
	case "local", "ollama":
		return ai.ProviderOllama
	case "google", "gemini":
		return ai.ProviderGemini
	}
	return name
}

func buildRuntime(ctx context.Context, c *cfgpkg.Global) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 1
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if c.HTTPTimeoutSec > 0 {
		httpTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	if c.RetryMaxAttempts > 0 {
		retryMax = c.RetryMaxAttempts
	}
	if c.RetryBaseDelayMs > 0 {
		baseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		maxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}

	provider := normalizeProvider(c.Provider)
	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
	}
	switch provider {
	case ai.ProviderOllama:
		rc.Host = c.OllamaHost
		if rc.Host == "" {
			rc.Host = ai.OllamaHost
		}
	case ai.ProviderGemini:
		rc.APIKey = c.GeminiAPIKey
	}

	rt, err := ai.NewRuntime(ctx, provider, rc)
	if err != nil {
		if errors.Is(err, ai.ErrMissingAPIKey) {
			return nil, provider, fmt.Errorf("%w: set %s or add it to %s", err, apiKeyHint(provider), configPathHint())
		}
		return nil, provider, err
	}
	return rt, provider, nil
}

func apiKeyHint(provider string) string {
	switch provider {
	case ai.ProviderGemini:
		return "GEMINI_API_KEY"
	case ai.ProviderOpenRouter:
		return "TABLETALK_API_KEY"
	}
	return "GROQ_API_KEY"
}

// modelFor picks the model to send; the Groq default is swapped for the
// Gemini default when Gemini is selected.
func modelFor(c *cfgpkg.Global, provider string) string {
	model := strings.TrimSpace(c.Model)
	if provider == ai.ProviderGemini && (model == "" || model == ai.DefaultGroqModel) {
		return ai.DefaultGeminiModel
	}
	if model == "" {
		return ai.DefaultGroqModel
	}
	return model
}

func buildOracle(ctx context.Context, c *cfgpkg.Global, log *zap.Logger) (*oracle.RuntimeOracle, error) {
	rt, provider, err := buildRuntime(ctx, c)
	if err != nil {
		return nil, err
	}
	model := modelFor(c, provider)
	log.Debug("oracle configured", zap.String("provider", provider), zap.String("model", model))
	return oracle.New(rt, model, c.OracleTimeoutDuration(), log.Named("oracle")), nil
}

func profileOptions(c *cfgpkg.Global) dataset.ProfileOptions {
	return dataset.ProfileOptions{MaxDistinct: c.ProfileMaxDistinct, MaxSamples: c.ProfileMaxSamples}
}

func pipelineOptions(c *cfgpkg.Global) (nlq.Options, error) {
	rules, err := nlq.CompileRules(c.RewriteRules)
	if err != nil {
		return nlq.Options{}, err
	}
	return nlq.Options{Rules: rules, Cutoff: c.FuzzyCutoff, PromptSamples: c.PromptSamples}, nil
}

// explain adds hints for the failure classes a user can act on.
func explain(err error, c *cfgpkg.Global) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	provider := normalizeProvider(c.Provider)
	switch {
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (TABLETALK_OLLAMA_HOST or config 'ollama_host'): %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set %s or add it to %s: %w", apiKeyHint(provider), configPathHint(), err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", modelFor(c, provider), modelFor(c, provider), err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name: %w", modelFor(c, provider), err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	}
	return err
}

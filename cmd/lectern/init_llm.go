package main

import (
	"fmt"
	"log/slog"

	"lectern/internal/adapter/llm"
	"lectern/internal/domain"
	"lectern/internal/infra/config"
)

// initLLM builds the default chat provider, wrapped with a circuit breaker
// when one is configured. It also returns the provider's config so callers
// can read the model name.
func initLLM(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, config.ProviderConfig, error) {
	pc, ok := cfg.LLM.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return nil, pc, fmt.Errorf("default provider %q is not configured", cfg.LLM.DefaultProvider)
	}

	provider, err := createLLMProvider(pc, log)
	if err != nil {
		return nil, pc, fmt.Errorf("provider %s: %w", pc.Name, err)
	}

	cbCfg := cfg.LLM.CircuitBreaker
	if cbCfg.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
			MaxFailures: cbCfg.MaxFailures,
			Timeout:     cbCfg.Timeout,
			Interval:    cbCfg.Interval,
		}, log)
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	return provider, pc, nil
}

// createLLMProvider creates an LLM provider based on the type field.
func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "ollama":
		return llm.NewOllamaProvider(pc, log), nil
	case "bedrock":
		return createBedrockProvider(pc, log)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}

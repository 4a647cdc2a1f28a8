package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateEmbedding(cfg, ve)
	validateStore(cfg, ve)
	validateSearch(cfg, ve)
	validateAssistant(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	names := map[string]bool{}
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if names[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		names[p.Name] = true
		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is not supported", i, p.Type)
		}
	}
	if cfg.LLM.DefaultProvider != "" && len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not in llm.providers", cfg.LLM.DefaultProvider)
	}
}

var validEmbeddingProviders = map[string]bool{
	"": true, "openai": true, "ollama": true, "gemini": true,
}

func validateEmbedding(cfg *Config, ve *ValidationError) {
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		ve.Add("embedding.provider %q is not supported", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions < 0 {
		ve.Add("embedding.dimensions must not be negative")
	}
	if cfg.Embedding.RateLimit < 0 {
		ve.Add("embedding.rate_limit must not be negative")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

func validateSearch(cfg *Config, ve *ValidationError) {
	if cfg.Search.MaxResults <= 0 {
		ve.Add("search.max_results must be > 0")
	}
	if cfg.Search.MaxCandidates < 0 {
		ve.Add("search.max_candidates must not be negative")
	}
}

func validateAssistant(cfg *Config, ve *ValidationError) {
	if cfg.Assistant.SystemPrompt == "" {
		ve.Add("assistant.system_prompt must not be empty")
	}
	if cfg.Assistant.MaxToolRounds <= 0 {
		ve.Add("assistant.max_tool_rounds must be > 0")
	}
	if cfg.Assistant.MaxTokens <= 0 {
		ve.Add("assistant.max_tokens must be > 0")
	}
}

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not valid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is not valid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
}

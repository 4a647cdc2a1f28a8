//go:build bedrock

package main

import (
	"log/slog"

	"lectern/internal/adapter/llm"
	"lectern/internal/domain"
	"lectern/internal/infra/config"
)

func createBedrockProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(pc, log)
}

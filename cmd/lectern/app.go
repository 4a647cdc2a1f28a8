package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lectern/internal/adapter/embedding"
	"lectern/internal/adapter/tool"
	"lectern/internal/adapter/vectorstore"
	"lectern/internal/domain"
	"lectern/internal/infra/config"
	"lectern/internal/infra/logger"
	"lectern/internal/infra/tracer"
)

// app bundles the components every subcommand needs: config, logging,
// tracing, the course store, and the tool registry.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *vectorstore.Store
	registry *tool.Registry
	closers  []func()
}

// newApp wires config, logger, tracer, store, and tools. When stdioMCP is
// set, stdout logging is redirected to stderr so the MCP protocol owns
// stdout. Callers must invoke close when done.
func newApp(ctx context.Context, flags cliFlags, stdioMCP bool) (*app, error) {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flags.DB != "" {
		cfg.Store.Path = flags.DB
	}
	if stdioMCP && cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}

	a := &app{cfg: cfg}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() { logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() { tracerShutdown(ctx) })

	// 3. Embedder & Store
	embedder, err := initEmbedder(cfg.Embedding)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("embedding: %w", err)
	}

	store, err := initStore(cfg, embedder, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			log.Error("store close error", "error", err)
		}
	})

	// 4. Tools
	registry := tool.NewRegistry(log)
	for _, t := range []domain.Tool{
		tool.NewCourseSearchTool(store, log),
		tool.NewCourseOutlineTool(store, log),
	} {
		if err := registry.Register(t); err != nil {
			a.close()
			return nil, fmt.Errorf("tools: %w", err)
		}
	}
	a.registry = registry

	return a, nil
}

// close releases app resources in reverse acquisition order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initEmbedder builds the embedding provider chain: base provider, then
// rate limiting, then the query cache so cache hits skip the limiter.
// An empty provider name selects keyword-only search (nil embedder).
func initEmbedder(cfg config.EmbeddingConfig) (domain.EmbeddingProvider, error) {
	var provider domain.EmbeddingProvider

	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		var opts []embedding.OpenAIOption
		if cfg.Model != "" {
			opts = append(opts, embedding.WithOpenAIModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embedding.WithOpenAIBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embedding.WithOpenAIDimensions(cfg.Dimensions))
		}
		provider = embedding.NewOpenAIProvider(cfg.APIKey, opts...)
	case "ollama":
		var opts []embedding.OllamaOption
		if cfg.Model != "" {
			opts = append(opts, embedding.WithOllamaModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embedding.WithOllamaBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embedding.WithOllamaDimensions(cfg.Dimensions))
		}
		provider = embedding.NewOllamaProvider(opts...)
	case "gemini":
		var opts []embedding.GeminiOption
		if cfg.Model != "" {
			opts = append(opts, embedding.WithGeminiModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embedding.WithGeminiBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embedding.WithGeminiDimensions(cfg.Dimensions))
		}
		provider = embedding.NewGeminiProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		provider = embedding.NewRateLimitedEmbedder(provider, cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CacheSize > 0 {
		provider = embedding.NewCachedEmbedder(provider, cfg.CacheSize)
	}
	return provider, nil
}

// initStore opens the course database, creating its directory if needed.
func initStore(cfg *config.Config, embedder domain.EmbeddingProvider, log *slog.Logger) (*vectorstore.Store, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return vectorstore.New(cfg.Store.Path, embedder, log, vectorstore.Options{
		MaxResults:    cfg.Search.MaxResults,
		MaxCandidates: cfg.Search.MaxCandidates,
	})
}

package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"lectern/internal/domain"
)

// RateLimitedEmbedder wraps a domain.EmbeddingProvider with a client-side
// request rate limit, protecting API quotas during bulk indexing. Calls
// block until a slot is available or the context is cancelled.
type RateLimitedEmbedder struct {
	inner   domain.EmbeddingProvider
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder limits inner to rps requests per second with the
// given burst. If rps <= 0, the inner provider is returned directly
// (no limiting).
func NewRateLimitedEmbedder(inner domain.EmbeddingProvider, rps float64, burst int) domain.EmbeddingProvider {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed implements domain.EmbeddingProvider.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRateLimit, err)
	}
	return r.inner.Embed(ctx, texts)
}

// Dimensions implements domain.EmbeddingProvider.
func (r *RateLimitedEmbedder) Dimensions() int { return r.inner.Dimensions() }

// Name implements domain.EmbeddingProvider.
func (r *RateLimitedEmbedder) Name() string { return r.inner.Name() }

// Compile-time interface check.
var _ domain.EmbeddingProvider = (*RateLimitedEmbedder)(nil)

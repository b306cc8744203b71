package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledEmbedder rate-limits batch calls to the embedding provider.
type ThrottledEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewThrottled wraps inner with a token-bucket limiter.
func NewThrottled(inner Embedder, requestsPerSecond float64, burst int) *ThrottledEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Name returns the wrapped provider name.
func (e *ThrottledEmbedder) Name() string {
	return e.inner.Name()
}

// Embed waits for rate-limit clearance, then delegates.
func (e *ThrottledEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, texts)
}

package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an embedding provider
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited allows limit calls per second with the given burst
func NewRateLimited(next Provider, limit rate.Limit, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.next.EmbedStrings(ctx, texts, opts...)
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"persona_engine/internal/config"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"
)

// Provider is the embedding contract consumed by the memory store
type Provider = embedding.Embedder

// ErrEmptyResult is returned when a provider answers with fewer vectors than inputs
var ErrEmptyResult = errors.New("embedding provider returned no vectors")

// EmbedOne embeds a single text
func EmbedOne(ctx context.Context, p Provider, text string) ([]float64, error) {
	vecs, err := p.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrEmptyResult
	}
	return vecs[0], nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// New builds the configured provider, wrapped with caching and rate limiting when enabled
func New(cfg config.EmbeddingConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "", "hash":
		p = NewHashEmbedder(cfg.Dimensions)
	case "ollama":
		p, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Timeout)
	case "openai":
		p, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		p = NewRateLimited(p, rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	if cfg.CacheSize > 0 {
		p = NewCached(p, cfg.CacheSize)
	}
	return p, nil
}

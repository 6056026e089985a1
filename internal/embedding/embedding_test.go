package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"persona_engine/internal/config"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(256)
	vecs, err := h.EmbedStrings(context.Background(), []string{
		"O nome do usuário é João",
		"O nome do usuário é João",
		"O usuário mora em São Paulo",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 256)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, CosineSimilarity(vecs[0], vecs[1]), 1e-9)
	assert.Less(t, CosineSimilarity(vecs[0], vecs[2]), 0.9)
}

func TestHashEmbedderRelatedTextsAreCloser(t *testing.T) {
	h := NewHashEmbedder(256)
	vecs, err := h.EmbedStrings(context.Background(), []string{
		"tenho uma pizzaria",
		"minha pizzaria",
		"gosto de correr na praia",
	})
	require.NoError(t, err)
	assert.Greater(t, CosineSimilarity(vecs[0], vecs[1]), CosineSimilarity(vecs[0], vecs[2]))
}

func TestHashEmbedderEmptyText(t *testing.T) {
	h := NewHashEmbedder(16)
	vecs, err := h.EmbedStrings(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 16)
	assert.Equal(t, 0.0, CosineSimilarity(vecs[0], vecs[0]))
}

func TestHashEmbedderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).EmbedStrings(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedOne(t *testing.T) {
	vec, err := EmbedOne(context.Background(), &countingProvider{}, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)

	_, err = EmbedOne(context.Background(), &countingProvider{err: errors.New("down")}, "abc")
	assert.EqualError(t, err, "down")
}

func TestCachedAvoidsRepeatCalls(t *testing.T) {
	inner := &countingProvider{}
	c := NewCached(inner, 2)
	ctx := context.Background()

	_, err := c.EmbedStrings(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	vecs, err := c.EmbedStrings(ctx, []string{"bb", "a"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, []float64{2, 1}, vecs[0])

	hits, misses := c.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 2, misses)

	// evicts "a"
	_, err = c.EmbedStrings(ctx, []string{"ccc"})
	require.NoError(t, err)
	_, err = c.EmbedStrings(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	c := NewCached(inner, 4)
	_, err := c.EmbedStrings(context.Background(), []string{"a"})
	assert.Error(t, err)
	inner.err = nil
	_, err = c.EmbedStrings(context.Background(), []string{"a"})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestRateLimitedRespectsContext(t *testing.T) {
	inner := &countingProvider{}
	r := NewRateLimited(inner, rate.Every(time.Hour), 1)

	_, err := r.EmbedStrings(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.EmbedStrings(ctx, []string{"b"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.5,0.25],[1,0]]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(srv.URL, "nomic-embed-text", time.Second)
	require.NoError(t, err)
	vecs, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.25}, {1, 0}}, vecs)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 2, Timeout: time.Second})
	require.NoError(t, err)
	vecs, err := e.EmbedStrings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	p, err := New(config.EmbeddingConfig{Provider: "hash", Dimensions: 32, CacheSize: 8, RateLimit: 100, Burst: 5})
	require.NoError(t, err)
	_, ok := p.(*Cached)
	assert.True(t, ok)

	vec, err := EmbedOne(context.Background(), p, "olá mundo")
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

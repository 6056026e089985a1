package knowledge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"persona_engine/internal/embedding"
	"persona_engine/pkg"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	inner   *embedding.HashEmbedder
	mu      sync.Mutex
	batches []int
	short   bool
	err     error
}

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembed.Option) ([][]float64, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(texts))
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	vecs, err := c.inner.EmbedStrings(ctx, texts, opts...)
	if c.short {
		return vecs[:len(vecs)-1], err
	}
	return vecs, err
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{inner: embedding.NewHashEmbedder(256)}
}

func TestBuildEmbedsOneBatchPerPersona(t *testing.T) {
	emb := newCounting()
	ix, err := Build(context.Background(), emb, DefaultCorpus())
	require.NoError(t, err)

	sort.Ints(emb.batches)
	assert.Equal(t, []int{6, 8}, emb.batches)
	assert.Equal(t, 14, ix.Size())
}

func TestSearchRanksPersonaPassages(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, embedding.NewHashEmbedder(256), DefaultCorpus())
	require.NoError(t, err)

	hits, err := ix.Search(ctx, pkg.PersonaSocialMedia, "Planejamento de calendário editorial.", 0)
	require.NoError(t, err)
	require.Len(t, hits, DefaultTopK)
	assert.Equal(t, "Planejamento de calendário editorial.", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = ix.Search(ctx, pkg.PersonaConsultant, logicaMestra, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, logicaMestra, hits[0].Content)

	hits, err = ix.Search(ctx, "unknown", metodoMD, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, metodoMD, hits[0].Content)

	hits, err = ix.Search(ctx, pkg.PersonaConsultant, "medo", 50)
	require.NoError(t, err)
	assert.Len(t, hits, 6)
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	failing := newCounting()
	failing.err = errors.New("provider down")
	_, err := Build(ctx, failing, DefaultCorpus())
	assert.ErrorContains(t, err, "provider down")

	short := newCounting()
	short.short = true
	_, err = Build(ctx, short, DefaultCorpus())
	assert.ErrorIs(t, err, embedding.ErrEmptyResult)
}

func TestSearchEmptyIndex(t *testing.T) {
	emb := newCounting()
	ix, err := Build(context.Background(), emb, map[string][]string{pkg.PersonaSocialMedia: {}})
	require.NoError(t, err)
	assert.Zero(t, ix.Size())

	hits, err := ix.Search(context.Background(), pkg.PersonaSocialMedia, "reels", 2)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, emb.batches)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))

	out := Format([]Hit{{Content: "primeiro"}, {Content: "segundo"}})
	assert.Contains(t, out, "## BASE DE CONHECIMENTO\n")
	assert.Contains(t, out, "primeiro\n\nsegundo\n")
}

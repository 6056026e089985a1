package embedding

import (
	"context"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
)

// Cached wraps a provider with a bounded content-hash cache
type Cached struct {
	next     Provider
	capacity int

	mu    sync.Mutex
	items map[uint64][]float64
	order []uint64

	hits, misses int
}

// NewCached creates a cache holding at most capacity vectors, evicting the oldest first
func NewCached(next Provider, capacity int) *Cached {
	return &Cached{
		next:     next,
		capacity: capacity,
		items:    make(map[uint64][]float64, capacity),
	}
}

// ContentHash keys a text in the cache
func ContentHash(text string) uint64 {
	return xxhash.Sum64String(text)
}

func (c *Cached) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.items[ContentHash(text)]; ok {
			out[i] = slices.Clone(vec)
			c.hits++
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
		c.misses++
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedStrings(ctx, missing, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, ErrEmptyResult
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		c.put(ContentHash(missing[j]), slices.Clone(vec))
	}
	return out, nil
}

// Stats returns cache hits and misses since creation
func (c *Cached) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cached) put(key uint64, vec []float64) {
	if _, ok := c.items[key]; ok {
		c.items[key] = vec
		return
	}
	if c.capacity > 0 && len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.items[key] = vec
	c.order = append(c.order, key)
}

package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/orsinium-labs/stopwords"
)

// HashEmbedder is an offline, deterministic embedder based on feature hashing of
// content words and their character trigrams
type HashEmbedder struct {
	dims int
	stop *stopwords.Stopwords
}

// NewHashEmbedder creates a hash embedder producing vectors of dims components
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims, stop: stopwords.MustGet("pt")}
}

// Dimensions returns the vector length
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float64 {
	v := make([]float64, h.dims)

	tokens := h.contentTokens(text)
	for _, tok := range tokens {
		h.add(v, "w:"+tok, 1)
		runes := []rune(tok)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, "t:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (h *HashEmbedder) add(v []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dims)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// contentTokens lower-cases, splits on non-alphanumerics and drops stopwords.
// A text made only of stopwords keeps them.
func (h *HashEmbedder) contentTokens(text string) []string {
	all := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := make([]string, 0, len(all))
	for _, tok := range all {
		if !h.stop.Contains(tok) {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

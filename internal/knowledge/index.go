package knowledge

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"persona_engine/internal/embedding"
	"persona_engine/internal/logger"
	"persona_engine/pkg"
)

// DefaultTopK is the number of passages returned when Search is asked for k <= 0
const DefaultTopK = 2

// Hit is one retrieved passage
type Hit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type passage struct {
	content string
	vector  []float64
}

// Index holds one embedded passage set per persona. It is immutable once built.
type Index struct {
	embedder embedding.Provider
	passages map[string][]passage
}

// Build embeds every persona's passages with a single batch call per persona
func Build(ctx context.Context, embedder embedding.Provider, corpus map[string][]string) (*Index, error) {
	ix := &Index{embedder: embedder, passages: make(map[string][]passage, len(corpus))}
	for personaID, texts := range corpus {
		if len(texts) == 0 {
			continue
		}
		vecs, err := embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed %s knowledge: %w", personaID, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed %s knowledge: %w", personaID, embedding.ErrEmptyResult)
		}
		docs := make([]passage, len(texts))
		for i, text := range texts {
			docs[i] = passage{content: strings.TrimSpace(text), vector: vecs[i]}
		}
		ix.passages[personaID] = docs
	}

	logger.Info().Int("personas", len(ix.passages)).Int("passages", ix.Size()).Msg("knowledge index built")
	return ix, nil
}

// Size returns the number of indexed passages
func (ix *Index) Size() int {
	n := 0
	for _, docs := range ix.passages {
		n += len(docs)
	}
	return n
}

// Search returns the k passages of the persona most similar to query.
// Personas without their own passages use the consultant's.
func (ix *Index) Search(ctx context.Context, personaID, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	docs, ok := ix.passages[personaID]
	if !ok {
		docs = ix.passages[pkg.PersonaConsultant]
	}
	if len(docs) == 0 {
		return []Hit{}, nil
	}

	vec, err := embedding.EmbedOne(ctx, ix.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge query: %w", err)
	}

	hits := make([]Hit, len(docs))
	for i, d := range docs {
		hits[i] = Hit{Content: d.content, Score: embedding.CosineSimilarity(vec, d.vector)}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Format renders hits as a prompt section; no hits render as ""
func Format(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}
	return "## BASE DE CONHECIMENTO\nUse este contexto para responder. Se a resposta não estiver aqui, use seu conhecimento geral, mas priorize o contexto.\n\n" +
		strings.Join(parts, "\n\n") + "\n"
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"persona_engine/internal/embedding"
	"persona_engine/internal/logger"
	"persona_engine/pkg"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("memory not found")
	ErrEmptyContent = errors.New("memory content is empty")
	ErrEmbedding    = errors.New("embedding failed")
)

// Config tunes consolidation, decay and capacity of the store
type Config struct {
	MaxPerOwner            int
	ConsolidationThreshold float64
	DecayRate              float64 // per hour
	RecallLimit            int
}

// DefaultConfig returns the standard store settings
func DefaultConfig() Config {
	return Config{
		MaxPerOwner:            100,
		ConsolidationThreshold: 0.9,
		DecayRate:              0.001,
		RecallLimit:            5,
	}
}

// StoreOptions describe a memory being stored; zero values take defaults
type StoreOptions struct {
	Kind       pkg.MemoryKind
	Importance float64
	Emotion    string
	Metadata   map[string]any
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.Kind == "" {
		o.Kind = pkg.MemorySemantic
	}
	if o.Importance <= 0 {
		o.Importance = pkg.ImportanceMedium
	}
	o.Importance = math.Min(o.Importance, 1)
	if o.Emotion == "" {
		o.Emotion = "neutral"
	}
	return o
}

// Store is an embedding-indexed memory store keyed by owner.
// Mutations of one owner's collection are serialized; distinct owners proceed concurrently.
type Store struct {
	cfg       Config
	embedder  embedding.Provider
	now       func() time.Time
	newID     func() string
	persister *Persister

	mu     sync.RWMutex
	owners map[string]*collection
}

type collection struct {
	mu      sync.Mutex
	entries []pkg.MemoryEntry
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for timestamps and decay
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the generator of memory ids
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithPersister attaches a write-behind persister that receives every changed owner
func WithPersister(p *Persister) Option {
	return func(s *Store) { s.persister = p }
}

// NewStore creates a memory store over an embedding provider
func NewStore(embedder embedding.Provider, cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = def.MaxPerOwner
	}
	if cfg.ConsolidationThreshold <= 0 {
		cfg.ConsolidationThreshold = def.ConsolidationThreshold
	}
	if cfg.DecayRate < 0 {
		cfg.DecayRate = def.DecayRate
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = def.RecallLimit
	}

	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		now:      time.Now,
		newID:    uuid.NewString,
		owners:   make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persister != nil {
		s.persister.attach(s)
	}
	return s
}

// ====================== Public Methods ======================

// Store embeds content and appends it to the owner's collection, or merges it into a
// near-identical entry. Returns the id of the new or merged entry.
//
// At capacity the incoming entry is ranked with the rest and may itself be pruned;
// the returned id then names no stored entry and Forget on it reports ErrNotFound.
func (s *Store) Store(ctx context.Context, ownerID, content string, opts StoreOptions) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	opts = opts.withDefaults()

	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", err
	}

	now := s.now()
	incoming := pkg.MemoryEntry{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Kind:           opts.Kind,
		Content:        content,
		Embedding:      vec,
		Importance:     opts.Importance,
		Emotion:        opts.Emotion,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       maps.Clone(opts.Metadata),
	}

	col := s.collection(ownerID)
	col.mu.Lock()
	defer col.mu.Unlock()

	entries := slices.Clone(col.entries)
	id := incoming.ID
	consolidated := false
	if idx, sim := bestMatch(entries, vec); idx >= 0 && sim >= s.cfg.ConsolidationThreshold {
		entries[idx] = consolidate(entries[idx], incoming, now)
		id = entries[idx].ID
		consolidated = true
	} else {
		entries = append(entries, incoming)
	}
	entries, removed := s.prune(entries, now)
	kept := slices.ContainsFunc(entries, func(e pkg.MemoryEntry) bool { return e.ID == id })

	col.entries = entries
	s.markDirty(ownerID)

	logger.Debug().
		Str("owner_id", ownerID).
		Str("memory_id", id).
		Str("kind", string(opts.Kind)).
		Bool("consolidated", consolidated).
		Bool("kept", kept).
		Int("pruned", removed).
		Msg("memory stored")

	return id, nil
}

// Recall ranks the owner's entries against query and returns at most limit of them.
// Every returned entry has its access count incremented.
func (s *Store) Recall(ctx context.Context, ownerID, query string, limit int) ([]pkg.RecalledMemory, error) {
	if limit <= 0 {
		limit = s.cfg.RecallLimit
	}
	col := s.lookup(ownerID)
	if col == nil || col.size() == 0 {
		return []pkg.RecalledMemory{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	now := s.now()
	type ranked struct {
		idx        int
		score, sim float64
	}
	scores := make([]ranked, len(col.entries))
	for i, e := range col.entries {
		sim := embedding.CosineSimilarity(vec, e.Embedding)
		score := sim * e.Importance * s.decay(e, now) * (1 + math.Log(float64(e.AccessCount)+1)*0.1)
		scores[i] = ranked{idx: i, score: score, sim: sim}
	}
	slices.SortStableFunc(scores, func(a, b ranked) int { return cmpDesc(a.score, b.score) })
	if len(scores) > limit {
		scores = scores[:limit]
	}

	entries := slices.Clone(col.entries)
	out := make([]pkg.RecalledMemory, 0, len(scores))
	for _, r := range scores {
		e := entries[r.idx]
		e.AccessCount++
		e.LastAccessedAt = now
		entries[r.idx] = e
		out = append(out, pkg.RecalledMemory{MemoryEntry: e.Clone(), RelevanceScore: r.score, Similarity: r.sim})
	}
	col.entries = entries
	if len(out) > 0 {
		s.markDirty(ownerID)
	}
	return out, nil
}

// FindSimilar returns the owner's entries whose cosine similarity to content reaches threshold,
// most similar first. It has no side effects on the entries.
func (s *Store) FindSimilar(ctx context.Context, ownerID, content string, threshold float64) ([]pkg.RecalledMemory, error) {
	col := s.lookup(ownerID)
	if col == nil || col.size() == 0 {
		return []pkg.RecalledMemory{}, nil
	}
	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	out := []pkg.RecalledMemory{}
	for _, e := range col.entries {
		sim := embedding.CosineSimilarity(vec, e.Embedding)
		if sim >= threshold {
			out = append(out, pkg.RecalledMemory{MemoryEntry: e.Clone(), RelevanceScore: sim, Similarity: sim})
		}
	}
	slices.SortStableFunc(out, func(a, b pkg.RecalledMemory) int { return cmpDesc(a.Similarity, b.Similarity) })
	return out, nil
}

// Consolidate merges content into the existing entry existingID
func (s *Store) Consolidate(ctx context.Context, ownerID, existingID, content string, opts StoreOptions) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	opts = opts.withDefaults()
	vec, err := s.embed(ctx, content)
	if err != nil {
		return err
	}

	col := s.lookup(ownerID)
	if col == nil {
		return ErrNotFound
	}
	col.mu.Lock()
	defer col.mu.Unlock()

	idx := slices.IndexFunc(col.entries, func(e pkg.MemoryEntry) bool { return e.ID == existingID })
	if idx < 0 {
		return ErrNotFound
	}
	now := s.now()
	entries := slices.Clone(col.entries)
	entries[idx] = consolidate(entries[idx], pkg.MemoryEntry{
		Content:    content,
		Embedding:  vec,
		Importance: opts.Importance,
		Emotion:    opts.Emotion,
		Metadata:   opts.Metadata,
	}, now)
	col.entries = entries
	s.markDirty(ownerID)
	return nil
}

// Prune drops the lowest-scoring entries above the per-owner cap and returns how many were removed
func (s *Store) Prune(ownerID string) int {
	col := s.lookup(ownerID)
	if col == nil {
		return 0
	}
	col.mu.Lock()
	defer col.mu.Unlock()

	entries, removed := s.prune(slices.Clone(col.entries), s.now())
	if removed > 0 {
		col.entries = entries
		s.markDirty(ownerID)
	}
	return removed
}

// Forget removes a single entry
func (s *Store) Forget(ownerID, entryID string) error {
	col := s.lookup(ownerID)
	if col == nil {
		return ErrNotFound
	}
	col.mu.Lock()
	defer col.mu.Unlock()

	idx := slices.IndexFunc(col.entries, func(e pkg.MemoryEntry) bool { return e.ID == entryID })
	if idx < 0 {
		return ErrNotFound
	}
	col.entries = slices.Delete(slices.Clone(col.entries), idx, idx+1)
	s.markDirty(ownerID)
	return nil
}

// ForgetAll removes every entry of an owner and returns how many were removed
func (s *Store) ForgetAll(ownerID string) int {
	col := s.lookup(ownerID)
	if col == nil {
		return 0
	}
	col.mu.Lock()
	defer col.mu.Unlock()

	n := len(col.entries)
	col.entries = nil
	s.markDirty(ownerID)
	return n
}

// Entries returns a copy of the owner's collection
func (s *Store) Entries(ownerID string) []pkg.MemoryEntry {
	col := s.lookup(ownerID)
	if col == nil {
		return []pkg.MemoryEntry{}
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	out := make([]pkg.MemoryEntry, len(col.entries))
	for i, e := range col.entries {
		out[i] = e.Clone()
	}
	return out
}

// Owners returns the ids of owners that currently hold memories
func (s *Store) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.owners))
	for id, col := range s.owners {
		if col.size() > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Load replaces an owner's collection, typically from a snapshot
func (s *Store) Load(ownerID string, entries []pkg.MemoryEntry) {
	col := s.collection(ownerID)
	col.mu.Lock()
	defer col.mu.Unlock()
	out := make([]pkg.MemoryEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	col.entries = out
}

// Flush writes pending changes through the attached persister, if any
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Flush(ctx)
}

// ====================== Private Methods ======================

func (s *Store) embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := embedding.EmbedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vec, nil
}

func (s *Store) lookup(ownerID string) *collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners[ownerID]
}

func (s *Store) collection(ownerID string) *collection {
	if col := s.lookup(ownerID); col != nil {
		return col
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if col := s.owners[ownerID]; col != nil {
		return col
	}
	col := &collection{}
	s.owners[ownerID] = col
	return col
}

func (c *collection) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (s *Store) decay(e pkg.MemoryEntry, now time.Time) float64 {
	hours := now.Sub(e.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-s.cfg.DecayRate * hours)
}

// prune keeps the MaxPerOwner best entries by decayed importance and access frequency,
// preserving their relative order
func (s *Store) prune(entries []pkg.MemoryEntry, now time.Time) ([]pkg.MemoryEntry, int) {
	if len(entries) <= s.cfg.MaxPerOwner {
		return entries, 0
	}
	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(entries))
	for i, e := range entries {
		scores[i] = ranked{idx: i, score: e.Importance * s.decay(e, now) * (1 + float64(e.AccessCount)*0.1)}
	}
	slices.SortStableFunc(scores, func(a, b ranked) int { return cmpDesc(a.score, b.score) })

	keep := make(map[int]bool, s.cfg.MaxPerOwner)
	for _, r := range scores[:s.cfg.MaxPerOwner] {
		keep[r.idx] = true
	}
	out := make([]pkg.MemoryEntry, 0, s.cfg.MaxPerOwner)
	for i, e := range entries {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out, len(entries) - len(out)
}

func (s *Store) markDirty(ownerID string) {
	if s.persister != nil {
		s.persister.MarkDirty(ownerID)
	}
}

// bestMatch returns the index and similarity of the entry closest to vec, or -1
func bestMatch(entries []pkg.MemoryEntry, vec []float64) (int, float64) {
	best, bestSim := -1, math.Inf(-1)
	for i, e := range entries {
		if sim := embedding.CosineSimilarity(vec, e.Embedding); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best, bestSim
}

// consolidate merges incoming into existing: concatenated content, access-weighted
// running average of the embeddings, max importance, one more access
func consolidate(existing, incoming pkg.MemoryEntry, now time.Time) pkg.MemoryEntry {
	merged := existing.Clone()
	merged.Content = existing.Content + ". Atualização: " + incoming.Content

	ac := float64(existing.AccessCount)
	if len(existing.Embedding) == len(incoming.Embedding) {
		merged.Embedding = make([]float64, len(existing.Embedding))
		for i := range existing.Embedding {
			merged.Embedding[i] = (existing.Embedding[i]*ac + incoming.Embedding[i]) / (ac + 1)
		}
	}

	merged.Importance = math.Max(existing.Importance, incoming.Importance)
	merged.AccessCount = existing.AccessCount + 1
	merged.LastAccessedAt = now
	if len(incoming.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]any, len(incoming.Metadata))
		}
		maps.Copy(merged.Metadata, incoming.Metadata)
	}
	return merged
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

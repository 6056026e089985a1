package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona_engine/internal/embedding"
	"persona_engine/internal/storage"
	"persona_engine/pkg"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeEmbedder returns fixed vectors for known texts and hashed vectors otherwise
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   int
	hash    *embedding.HashEmbedder
}

func newFakeEmbedder(vectors map[string][]float64) *fakeEmbedder {
	return &fakeEmbedder{vectors: vectors, hash: embedding.NewHashEmbedder(64)}
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		vecs, err := f.hash.EmbedStrings(ctx, []string{t})
		if err != nil {
			return nil, err
		}
		out[i] = vecs[0]
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("mem-%d", n)
	}
}

func newTestStore(emb embedding.Provider, cfg Config, opts ...Option) (*Store, *clock) {
	clk := &clock{now: epoch}
	opts = append([]Option{WithClock(clk.Now), WithIDGenerator(sequentialIDs())}, opts...)
	return NewStore(emb, cfg, opts...), clk
}

func TestStore_ConsolidatesNearDuplicates(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{
		"gosta de pizza":   {1, 0, 0},
		"adora pizza":      {0.99, 0.1, 0},
		"mora em Curitiba": {0, 1, 0},
	})
	store, clk := newTestStore(emb, DefaultConfig())
	ctx := context.Background()

	id, err := store.Store(ctx, "c1", "gosta de pizza", StoreOptions{Importance: pkg.ImportanceMedium})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)

	clk.Advance(time.Minute)
	merged, err := store.Store(ctx, "c1", "adora pizza", StoreOptions{Importance: pkg.ImportanceHigh, Metadata: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, id, merged)

	entries := store.Entries("c1")
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "gosta de pizza. Atualização: adora pizza", e.Content)
	assert.Equal(t, pkg.ImportanceHigh, e.Importance)
	assert.Equal(t, 1, e.AccessCount)
	assert.Equal(t, []float64{0.99, 0.1, 0}, e.Embedding)
	assert.Equal(t, "neutral", e.Emotion)
	assert.Equal(t, "v", e.Metadata["k"])
	assert.True(t, epoch.Equal(e.CreatedAt))
	assert.True(t, epoch.Add(time.Minute).Equal(e.LastAccessedAt))

	_, err = store.Store(ctx, "c1", "mora em Curitiba", StoreOptions{})
	require.NoError(t, err)
	assert.Len(t, store.Entries("c1"), 2)
}

func TestStore_Defaults(t *testing.T) {
	store, _ := newTestStore(newFakeEmbedder(nil), DefaultConfig())
	_, err := store.Store(context.Background(), "c1", "  algo importante  ", StoreOptions{})
	require.NoError(t, err)

	e := store.Entries("c1")[0]
	assert.Equal(t, "algo importante", e.Content)
	assert.Equal(t, pkg.MemorySemantic, e.Kind)
	assert.Equal(t, pkg.ImportanceMedium, e.Importance)
	assert.Equal(t, "neutral", e.Emotion)
	assert.Equal(t, "c1", e.OwnerID)
	assert.Zero(t, e.AccessCount)

	_, err = store.Store(context.Background(), "c1", "   ", StoreOptions{})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestStore_EmbeddingFailureLeavesCollectionUntouched(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store, _ := newTestStore(emb, DefaultConfig())
	ctx := context.Background()

	_, err := store.Store(ctx, "c1", "primeiro fato", StoreOptions{})
	require.NoError(t, err)
	before := store.Entries("c1")

	emb.err = errors.New("provider down")
	_, err = store.Store(ctx, "c1", "segundo fato", StoreOptions{})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorContains(t, err, "provider down")

	_, err = store.Recall(ctx, "c1", "fato", 3)
	assert.ErrorIs(t, err, ErrEmbedding)

	assert.Equal(t, before, store.Entries("c1"))
}

func TestStore_RecallRanksAndCountsAccess(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{
		"a":     {1, 0, 0},
		"b":     {0, 1, 0},
		"c":     {0, 0, 1},
		"query": {0.8, 0.6, 0},
	})
	store, _ := newTestStore(emb, DefaultConfig())
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, err := store.Store(ctx, "c1", s, StoreOptions{Importance: pkg.ImportanceHigh})
		require.NoError(t, err)
	}

	got, err := store.Recall(ctx, "c1", "query", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
	assert.InDelta(t, 0.8, got[0].Similarity, 1e-9)
	assert.InDelta(t, 0.8*pkg.ImportanceHigh, got[0].RelevanceScore, 1e-9)
	assert.Equal(t, 1, got[0].AccessCount)

	counts := map[string]int{}
	for _, e := range store.Entries("c1") {
		counts[e.Content] = e.AccessCount
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 0}, counts)
}

func TestStore_RecallUsesDefaultLimitAndDecay(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{"old": {1, 0}, "new": {1, 0.01}, "q": {1, 0}})
	store, clk := newTestStore(emb, Config{MaxPerOwner: 10, ConsolidationThreshold: 1.01, DecayRate: 0.1, RecallLimit: 1})
	ctx := context.Background()

	_, err := store.Store(ctx, "c1", "old", StoreOptions{})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, err = store.Store(ctx, "c1", "new", StoreOptions{})
	require.NoError(t, err)

	got, err := store.Recall(ctx, "c1", "q", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
}

func TestStore_RecallUnknownOwnerSkipsEmbedding(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store, _ := newTestStore(emb, DefaultConfig())

	got, err := store.Recall(context.Background(), "nobody", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Zero(t, emb.callCount())
}

func TestStore_FindSimilarHasNoSideEffects(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{"a": {1, 0}, "b": {0, 1}, "q": {1, 0.2}})
	store, _ := newTestStore(emb, DefaultConfig())
	ctx := context.Background()
	for _, s := range []string{"a", "b"} {
		_, err := store.Store(ctx, "c1", s, StoreOptions{})
		require.NoError(t, err)
	}

	got, err := store.FindSimilar(ctx, "c1", "q", 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Content)
	for _, e := range store.Entries("c1") {
		assert.Zero(t, e.AccessCount)
	}
}

func TestStore_PruneKeepsBestEntriesInOrder(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{
		"m1": {1, 0, 0, 0, 0},
		"m2": {0, 1, 0, 0, 0},
		"m3": {0, 0, 1, 0, 0},
		"m4": {0, 0, 0, 1, 0},
		"m5": {0, 0, 0, 0, 1},
	})
	store, _ := newTestStore(emb, Config{MaxPerOwner: 3, ConsolidationThreshold: 0.9, DecayRate: 0.001, RecallLimit: 5})
	ctx := context.Background()
	importance := map[string]float64{"m1": 0.9, "m2": 0.2, "m3": 0.8, "m4": 0.3, "m5": 0.7}
	for _, s := range []string{"m1", "m2", "m3", "m4", "m5"} {
		_, err := store.Store(ctx, "c1", s, StoreOptions{Importance: importance[s]})
		require.NoError(t, err)
	}

	var contents []string
	for _, e := range store.Entries("c1") {
		contents = append(contents, e.Content)
	}
	assert.Equal(t, []string{"m1", "m3", "m5"}, contents)
	assert.Zero(t, store.Prune("c1"))
}

func TestStore_IncomingEntryCanBePrunedAtCapacity(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float64{
		"forte": {1, 0},
		"fraco": {0, 1},
	})
	store, _ := newTestStore(emb, Config{MaxPerOwner: 1, ConsolidationThreshold: 0.9, DecayRate: 0.001, RecallLimit: 5})
	ctx := context.Background()

	kept, err := store.Store(ctx, "c1", "forte", StoreOptions{Importance: 0.9})
	require.NoError(t, err)
	dropped, err := store.Store(ctx, "c1", "fraco", StoreOptions{Importance: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "mem-2", dropped)

	entries := store.Entries("c1")
	require.Len(t, entries, 1)
	assert.Equal(t, kept, entries[0].ID)
	assert.ErrorIs(t, store.Forget("c1", dropped), ErrNotFound)
}

func TestStore_ConsolidateAndForget(t *testing.T) {
	store, _ := newTestStore(newFakeEmbedder(nil), DefaultConfig())
	ctx := context.Background()
	id, err := store.Store(ctx, "c1", "tem uma loja", StoreOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Consolidate(ctx, "c1", id, "a loja vende roupas", StoreOptions{Importance: pkg.ImportanceCritical}))
	e := store.Entries("c1")[0]
	assert.Equal(t, "tem uma loja. Atualização: a loja vende roupas", e.Content)
	assert.Equal(t, pkg.ImportanceCritical, e.Importance)

	assert.ErrorIs(t, store.Consolidate(ctx, "c1", "missing", "x", StoreOptions{}), ErrNotFound)
	assert.ErrorIs(t, store.Consolidate(ctx, "other", id, "x", StoreOptions{}), ErrNotFound)

	assert.ErrorIs(t, store.Forget("c1", "missing"), ErrNotFound)
	require.NoError(t, store.Forget("c1", id))
	assert.Empty(t, store.Entries("c1"))
	assert.Zero(t, store.ForgetAll("nobody"))
}

func TestExtractAndStore_NameBusinessLocation(t *testing.T) {
	store, _ := newTestStore(embedding.NewHashEmbedder(256), DefaultConfig())

	got, err := store.ExtractAndStore(context.Background(), "c1", "me chamo João, tenho uma pizzaria em São Paulo", ExtractContext{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	contents := make([]string, len(got))
	for i, g := range got {
		contents[i] = g.Content
		assert.Equal(t, pkg.MemorySemantic, g.Kind)
		assert.Equal(t, "neutral", g.Emotion)
		assert.NotEmpty(t, g.ID)
	}
	assert.Equal(t, []string{
		"O nome do usuário é João",
		"O usuário tem um negócio: pizzaria",
		"O usuário mora em São Paulo",
	}, contents)

	entries := store.Entries("c1")
	require.Len(t, entries, 3)
	assert.Equal(t, pkg.ImportanceMedium, entries[2].Importance)
}

func TestExtractAndStore_EmotionalMoment(t *testing.T) {
	store, _ := newTestStore(embedding.NewHashEmbedder(256), DefaultConfig())

	got, err := store.ExtractAndStore(context.Background(), "c1", "consegui fechar meu primeiro cliente!", ExtractContext{Emotion: "happy", Intensity: 0.9})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pkg.MemoryEpisodic, got[0].Kind)
	assert.Equal(t, "excited", got[0].Emotion)
	assert.Equal(t, "O usuário teve uma conquista: fechar meu primeiro cliente", got[0].Content)

	entries := store.Entries("c1")
	require.Len(t, entries, 2)
	assert.Equal(t, pkg.MemoryEmotional, entries[1].Kind)
	assert.Equal(t, `Momento emocional (happy): "consegui fechar meu primeiro cliente!"`, entries[1].Content)
	assert.Equal(t, "happy", entries[1].Emotion)
}

func TestExtract_Templates(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"work skips article", "sou o Pedro", []string{"O nome do usuário é Pedro"}},
		{"work", "trabalho com marketing digital.", []string{"O usuário trabalha com marketing digital"}},
		{"goal", "quero vender mais no Instagram", []string{"O objetivo do usuário é vender mais no Instagram"}},
		{"difficulty", "estou com dificuldade para postar todo dia.", []string{"O usuário está com dificuldade: para postar todo dia"}},
		{"nothing", "bom dia", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range extract(tt.message) {
				got = append(got, e.Content)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	store, _ := newTestStore(newFakeEmbedder(map[string][]float64{
		"fato":    {1, 0, 0},
		"evento":  {0, 1, 0},
		"momento": {0, 0, 1},
	}), DefaultConfig())
	ctx := context.Background()

	empty := store.Summarize("c1")
	assert.Equal(t, "Nenhuma memória armazenada", empty.Text)
	assert.Zero(t, empty.Total)

	_, _ = store.Store(ctx, "c1", "fato", StoreOptions{Importance: 0.4})
	_, _ = store.Store(ctx, "c1", "evento", StoreOptions{Kind: pkg.MemoryEpisodic, Importance: 0.9})
	_, _ = store.Store(ctx, "c1", "momento", StoreOptions{Kind: pkg.MemoryEmotional, Importance: 0.6})

	sum := store.Summarize("c1")
	assert.Equal(t, "Fatos conhecidos: 1, Eventos registrados: 1, Momentos emocionais: 1", sum.Text)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, []string{"evento", "momento", "fato"}, sum.Top)

	stats := store.Stats()
	assert.Equal(t, 1, stats.TotalChats)
	assert.Equal(t, 3, stats.TotalMemories)
	assert.Equal(t, 1, stats.ByKind[pkg.MemoryEpisodic])
}

func TestFormatRecalled(t *testing.T) {
	assert.Equal(t, "", FormatRecalled(nil))

	out := FormatRecalled([]pkg.RecalledMemory{
		{MemoryEntry: pkg.MemoryEntry{Kind: pkg.MemorySemantic, Content: "O nome do usuário é João"}, RelevanceScore: 0.456},
		{MemoryEntry: pkg.MemoryEntry{Kind: "other", Content: "algo"}, RelevanceScore: 0.1},
	})
	assert.Equal(t, "## MEMÓRIAS RELEVANTES\n📚 O nome do usuário é João (relevância: 46%)\n📝 algo (relevância: 10%)\n", out)
}

func TestStore_ConcurrentOwners(t *testing.T) {
	store, _ := newTestStore(embedding.NewHashEmbedder(64), DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := store.Store(ctx, owner, fmt.Sprintf("fato número %d sobre %s", j, owner), StoreOptions{})
				assert.NoError(t, err)
				_, err = store.Recall(ctx, owner, "fato", 2)
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("owner-%d", i))
	}
	wg.Wait()
	assert.Equal(t, 8, store.Stats().TotalChats)
}

// flakySnapshots fails Save while broken is set
type flakySnapshots struct {
	*storage.MemorySnapshotStore
	mu     sync.Mutex
	broken bool
}

func (f *flakySnapshots) Save(ctx context.Context, owner string, entries []pkg.MemoryEntry) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("disk full")
	}
	return f.MemorySnapshotStore.Save(ctx, owner, entries)
}

func TestPersister_WritesAndRecovers(t *testing.T) {
	snaps := &flakySnapshots{MemorySnapshotStore: storage.NewMemorySnapshotStore(), broken: true}
	var failures int
	p := NewPersister(snaps, time.Hour, func(error) { failures++ })
	store, _ := newTestStore(embedding.NewHashEmbedder(64), DefaultConfig(), WithPersister(p))
	ctx := context.Background()

	_, err := store.Store(ctx, "c1", "O nome do usuário é João", StoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, p.Pending())

	assert.ErrorContains(t, store.Flush(ctx), "disk full")
	assert.ErrorContains(t, store.Flush(ctx), "disk full")
	assert.Equal(t, 1, failures)
	assert.Equal(t, []string{"c1"}, p.Pending())

	snaps.mu.Lock()
	snaps.broken = false
	snaps.mu.Unlock()
	require.NoError(t, store.Flush(ctx))
	assert.Empty(t, p.Pending())

	saved, err := snaps.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "O nome do usuário é João", saved[0].Content)

	store.ForgetAll("c1")
	require.NoError(t, p.Close(ctx))
	saved, err = snaps.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStore_Restore(t *testing.T) {
	snaps := storage.NewMemorySnapshotStore()
	ctx := context.Background()
	require.NoError(t, snaps.Save(ctx, "c1", []pkg.MemoryEntry{
		{ID: "m1", OwnerID: "c1", Kind: pkg.MemorySemantic, Content: "O usuário mora em Recife", Embedding: []float64{1, 0}, Importance: 0.5, CreatedAt: epoch},
	}))

	store, _ := newTestStore(newFakeEmbedder(map[string][]float64{"Recife": {1, 0}}), DefaultConfig())
	n, err := store.Restore(ctx, snaps)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Recall(ctx, "c1", "Recife", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

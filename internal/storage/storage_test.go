package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"persona_engine/pkg"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)

func sampleState(id string) *pkg.ConversationState {
	s := pkg.NewConversationState(id, fixed)
	s.Messages = append(s.Messages, pkg.ConversationMessage{Role: pkg.RoleUser, Content: "oi", Timestamp: fixed})
	s.UserProfile.Name = "João"
	s.UserProfile.Goals = []string{"vender mais"}
	s.Metrics.SentimentTrend = []float64{0.5}
	s.Phase = pkg.PhaseDiscovery
	s.LastInteraction = fixed
	return s
}

func sampleEntries(owner string) []pkg.MemoryEntry {
	return []pkg.MemoryEntry{
		{
			ID: "m1", OwnerID: owner, Kind: pkg.MemorySemantic, Content: "O nome do usuário é João",
			Embedding: []float64{0.1, 0.2}, Importance: pkg.ImportanceHigh, Emotion: "neutral",
			CreatedAt: fixed, LastAccessedAt: fixed,
		},
		{
			ID: "m2", OwnerID: owner, Kind: pkg.MemoryEpisodic, Content: "Conquista compartilhada: vendi 10",
			Embedding: []float64{0.3, 0.4}, Importance: pkg.ImportanceHigh, Emotion: "excited", AccessCount: 2,
			CreatedAt: fixed, LastAccessedAt: fixed, Metadata: map[string]any{"source": "chat"},
		},
	}
}

func exerciseStateStore(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, sampleState("c1")))
	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "João", got.UserProfile.Name)
	assert.Equal(t, pkg.PhaseDiscovery, got.Phase)
	assert.Equal(t, []string{"vender mais"}, got.UserProfile.Goals)
	require.Len(t, got.Messages, 1)
	assert.True(t, fixed.Equal(got.Messages[0].Timestamp))

	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func exerciseSnapshotStore(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Save(ctx, "u1", sampleEntries("u1")))
	require.NoError(t, store.Save(ctx, "u/2", sampleEntries("u/2")[:1]))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "Conquista compartilhada: vendi 10", loaded[1].Content)
	assert.Equal(t, []float64{0.3, 0.4}, loaded[1].Embedding)
	assert.Equal(t, 2, loaded[1].AccessCount)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["u/2"], 1)

	require.NoError(t, store.Save(ctx, "u1", sampleEntries("u1")[:1]))
	loaded, err = store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, store.Delete(ctx, "u1"))
	require.NoError(t, store.Delete(ctx, "u1"))
	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func exerciseClientStore(t *testing.T, store ClientStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetClient(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpdateClient(ctx, "c1", ClientRecord{Name: "João", Niche: "pizzaria"}))
	require.NoError(t, store.UpdateClient(ctx, "c1", ClientRecord{Location: "São Paulo"}))

	rec, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, "João", rec.Name)
	assert.Equal(t, "pizzaria", rec.Niche)
	assert.Equal(t, "São Paulo", rec.Location)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestMemoryStores(t *testing.T) {
	exerciseStateStore(t, NewMemoryStateStore())
	exerciseSnapshotStore(t, NewMemorySnapshotStore())
	exerciseClientStore(t, NewMemoryClientStore())
}

func TestMemoryStateStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	require.NoError(t, store.Put(ctx, sampleState("c1")))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	got.UserProfile.Goals[0] = "mutated"
	got.Messages = append(got.Messages, pkg.ConversationMessage{Content: "extra"})

	again, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "vender mais", again.UserProfile.Goals[0])
	assert.Len(t, again.Messages, 1)
}

func newRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStorage(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestRedisStores(t *testing.T) {
	rs, _ := newRedis(t)
	exerciseStateStore(t, rs.States(time.Hour))
	exerciseSnapshotStore(t, rs.Snapshots())
	exerciseClientStore(t, rs.Clients())
}

func TestRedisStateTTL(t *testing.T) {
	rs, mr := newRedis(t)
	ctx := context.Background()
	states := rs.States(0)

	require.NoError(t, states.Put(ctx, sampleState("c1")))
	ttl, err := states.TTL(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, DefaultStateTTL, ttl)

	mr.FastForward(DefaultStateTTL + time.Second)
	_, err = states.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStorageErrors(t *testing.T) {
	_, err := NewRedisStorage(context.Background(), "")
	assert.Error(t, err)
	_, err = NewRedisStorage(context.Background(), "::not a url")
	assert.Error(t, err)
}

func TestFileSnapshotStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memories")
	store := NewFileSnapshotStore(dir)

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	exerciseSnapshotStore(t, store)
}

func TestFileSnapshotStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1.json"), []byte("{not json"), 0644))
	_, err := NewFileSnapshotStore(dir).Load(context.Background(), "u1")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "persona.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseSnapshotStore(t, store)
	exerciseClientStore(t, store)
}

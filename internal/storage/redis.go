package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"persona_engine/pkg"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// DefaultStateTTL is how long an idle conversation state survives in Redis
const DefaultStateTTL = 24 * time.Hour

const (
	statePrefix    = "state:"
	snapshotPrefix = "memory:"
	clientPrefix   = "client:"
)

// RedisStorage owns the Redis connection shared by the Redis-backed stores
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects to redisURL and verifies the connection
func NewRedisStorage(ctx context.Context, redisURL string) (*RedisStorage, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Ping tests Redis connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// States returns a StateStore whose entries expire after ttl without access
func (r *RedisStorage) States(ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateStore{client: r.client, ttl: ttl}
}

// Snapshots returns a SnapshotStore for memory collections
func (r *RedisStorage) Snapshots() *RedisSnapshotStore {
	return &RedisSnapshotStore{client: r.client}
}

// Clients returns a ClientStore backed by Redis hashes
func (r *RedisStorage) Clients() *RedisClientStore {
	return &RedisClientStore{client: r.client, now: time.Now}
}

// ====================== State ======================

// RedisStateStore stores conversation state as JSON with a sliding TTL
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *RedisStateStore) Get(ctx context.Context, id string) (*pkg.ConversationState, error) {
	// GETEX refreshes the TTL on read
	data, err := s.client.GetEx(ctx, statePrefix+id, s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get state %s: %w", id, err)
	}

	var state pkg.ConversationState
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state %s: %w", id, err)
	}
	return &state, nil
}

func (s *RedisStateStore) Put(ctx context.Context, state *pkg.ConversationState) error {
	data, err := sonic.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, statePrefix+state.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state %s: %w", state.ID, err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, statePrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", id, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a stored state
func (s *RedisStateStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, statePrefix+id).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

// ====================== Snapshots ======================

// RedisSnapshotStore stores each owner's memory collection as one JSON value
type RedisSnapshotStore struct {
	client *redis.Client
}

func (s *RedisSnapshotStore) LoadAll(ctx context.Context) (map[string][]pkg.MemoryEntry, error) {
	out := make(map[string][]pkg.MemoryEntry)
	iter := s.client.Scan(ctx, 0, snapshotPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		owner := key[len(snapshotPrefix):]
		entries, err := s.Load(ctx, owner)
		if err != nil {
			return nil, err
		}
		out[owner] = entries
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	return out, nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, ownerID string) ([]pkg.MemoryEntry, error) {
	data, err := s.client.Get(ctx, snapshotPrefix+ownerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []pkg.MemoryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", ownerID, err)
	}
	var entries []pkg.MemoryEntry
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", ownerID, err)
	}
	return entries, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, ownerID string, entries []pkg.MemoryEntry) error {
	data, err := sonic.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotPrefix+ownerID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", ownerID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, snapshotPrefix+ownerID).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", ownerID, err)
	}
	return nil
}

// ====================== Clients ======================

// RedisClientStore stores client records as Redis hashes
type RedisClientStore struct {
	client *redis.Client
	now    func() time.Time
}

func (s *RedisClientStore) UpdateClient(ctx context.Context, id string, update ClientRecord) error {
	fields := map[string]any{"updated_at": s.now().UTC().Format(time.RFC3339Nano)}
	if update.Name != "" {
		fields["name"] = update.Name
	}
	if update.BusinessName != "" {
		fields["business_name"] = update.BusinessName
	}
	if update.Niche != "" {
		fields["niche"] = update.Niche
	}
	if update.Location != "" {
		fields["location"] = update.Location
	}
	if err := s.client.HSet(ctx, clientPrefix+id, fields).Err(); err != nil {
		return fmt.Errorf("failed to update client %s: %w", id, err)
	}
	return nil
}

func (s *RedisClientStore) GetClient(ctx context.Context, id string) (*ClientRecord, error) {
	fields, err := s.client.HGetAll(ctx, clientPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	rec := &ClientRecord{
		ID:           id,
		Name:         fields["name"],
		BusinessName: fields["business_name"],
		Niche:        fields["niche"],
		Location:     fields["location"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		rec.UpdatedAt = ts
	}
	return rec, nil
}

package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"persona_engine/pkg"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("not found")

// StateStore persists conversation state keyed by conversation id
type StateStore interface {
	Get(ctx context.Context, id string) (*pkg.ConversationState, error)
	Put(ctx context.Context, state *pkg.ConversationState) error
	Delete(ctx context.Context, id string) error
}

// SnapshotStore persists whole per-owner memory collections
type SnapshotStore interface {
	LoadAll(ctx context.Context) (map[string][]pkg.MemoryEntry, error)
	Load(ctx context.Context, ownerID string) ([]pkg.MemoryEntry, error)
	Save(ctx context.Context, ownerID string, entries []pkg.MemoryEntry) error
	Delete(ctx context.Context, ownerID string) error
}

// ClientRecord is the customer-facing record synced from the user profile
type ClientRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	BusinessName string    `json:"business_name,omitempty"`
	Niche        string    `json:"niche,omitempty"`
	Location     string    `json:"location,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// merge copies the non-empty fields of update onto r
func (r *ClientRecord) merge(update ClientRecord) {
	if update.Name != "" {
		r.Name = update.Name
	}
	if update.BusinessName != "" {
		r.BusinessName = update.BusinessName
	}
	if update.Niche != "" {
		r.Niche = update.Niche
	}
	if update.Location != "" {
		r.Location = update.Location
	}
}

// ClientStore keeps client records; updates merge non-empty fields
type ClientStore interface {
	UpdateClient(ctx context.Context, id string, update ClientRecord) error
	GetClient(ctx context.Context, id string) (*ClientRecord, error)
}

// ====================== In-memory implementations ======================

// MemoryStateStore keeps states in process memory, handing out deep copies
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*pkg.ConversationState
}

// NewMemoryStateStore creates an empty in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*pkg.ConversationState)}
}

func (m *MemoryStateStore) Get(_ context.Context, id string) (*pkg.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStateStore) Put(_ context.Context, state *pkg.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.ID] = state.Clone()
	return nil
}

func (m *MemoryStateStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

// MemorySnapshotStore keeps memory snapshots in process memory
type MemorySnapshotStore struct {
	mu     sync.RWMutex
	owners map[string][]pkg.MemoryEntry
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{owners: make(map[string][]pkg.MemoryEntry)}
}

func (m *MemorySnapshotStore) LoadAll(_ context.Context) (map[string][]pkg.MemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]pkg.MemoryEntry, len(m.owners))
	for owner, entries := range m.owners {
		out[owner] = cloneEntries(entries)
	}
	return out, nil
}

func (m *MemorySnapshotStore) Load(_ context.Context, ownerID string) ([]pkg.MemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEntries(m.owners[ownerID]), nil
}

func (m *MemorySnapshotStore) Save(_ context.Context, ownerID string, entries []pkg.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[ownerID] = cloneEntries(entries)
	return nil
}

func (m *MemorySnapshotStore) Delete(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, ownerID)
	return nil
}

// MemoryClientStore keeps client records in process memory
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]ClientRecord
	now     func() time.Time
}

// NewMemoryClientStore creates an empty in-memory client store
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[string]ClientRecord), now: time.Now}
}

func (m *MemoryClientStore) UpdateClient(_ context.Context, id string, update ClientRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.clients[id]
	rec.ID = id
	rec.merge(update)
	rec.UpdatedAt = m.now()
	m.clients[id] = rec
	return nil
}

func (m *MemoryClientStore) GetClient(_ context.Context, id string) (*ClientRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func cloneEntries(entries []pkg.MemoryEntry) []pkg.MemoryEntry {
	out := make([]pkg.MemoryEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

package emotion

import (
	"slices"
	"sync"
	"time"
)

// HistoryEntry is one analyzed message in a conversation's emotion history
type HistoryEntry struct {
	Label   string    `json:"label"`
	Valence float64   `json:"valence"`
	At      time.Time `json:"at"`
}

// HistoryStore keeps a bounded emotion history per conversation
type HistoryStore interface {
	// Append adds an entry and returns the retained window, oldest first
	Append(conversationID string, entry HistoryEntry) []HistoryEntry
	Entries(conversationID string) []HistoryEntry
	Reset(conversationID string)
}

// MemoryHistory is a mutex-guarded in-memory HistoryStore
type MemoryHistory struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]HistoryEntry
}

// NewMemoryHistory creates a history keeping the last capacity entries per conversation
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 10
	}
	return &MemoryHistory{
		capacity: capacity,
		entries:  make(map[string][]HistoryEntry),
	}
}

func (h *MemoryHistory) Append(conversationID string, entry HistoryEntry) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[conversationID], entry)
	if len(list) > h.capacity {
		list = slices.Clone(list[len(list)-h.capacity:])
	}
	h.entries[conversationID] = list
	return slices.Clone(list)
}

func (h *MemoryHistory) Entries(conversationID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries[conversationID])
}

func (h *MemoryHistory) Reset(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, conversationID)
}

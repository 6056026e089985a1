package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"persona_engine/internal/engine"
	"persona_engine/internal/memory"
	"persona_engine/internal/orchestrator"
	"persona_engine/pkg"

	"github.com/go-chi/chi/v5"
)

// Health handles GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MessageRequest is the body of POST /chats/{id}/messages
type MessageRequest struct {
	Text        string            `json:"text"`
	Voice       *pkg.VoiceContext `json:"voice,omitempty"`
	ContactName string            `json:"contact_name,omitempty"`
}

type ChatHandler struct {
	orch *orchestrator.Orchestrator
}

func NewChatHandler(orch *orchestrator.Orchestrator) *ChatHandler {
	return &ChatHandler{orch: orch}
}

// PostMessage handles POST /chats/{id}/messages
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	in, ok := readInput(w, r)
	if !ok {
		return
	}

	resp, err := h.orch.ProcessMessage(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrTurnInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// EnqueueMessage handles POST /chats/{id}/messages/buffered
func (h *ChatHandler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	in, ok := readInput(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(in.Text) == "" && (in.Voice == nil || strings.TrimSpace(in.Voice.Transcript) == "") {
		writeError(w, http.StatusBadRequest, orchestrator.ErrEmptyMessage.Error())
		return
	}
	h.orch.Enqueue(in)

	pending, _ := h.orch.Pending(in.ConversationID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"buffered":       pending.MessageCount,
		"pending_text":   pending.Text,
		"since_first_ms": pending.SinceFirst.Milliseconds(),
	})
}

// Stats handles GET /chats/{id}/stats
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.GetStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Reset handles DELETE /chats/{id}
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	err := h.orch.ResetChat(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, engine.ErrTurnInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readInput(w http.ResponseWriter, r *http.Request) (orchestrator.Input, bool) {
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return orchestrator.Input{}, false
	}
	return orchestrator.Input{
		ConversationID: chi.URLParam(r, "id"),
		Text:           req.Text,
		Voice:          req.Voice,
		ContactName:    req.ContactName,
	}, true
}

// MemoryView is a memory entry without its embedding
type MemoryView struct {
	ID             string         `json:"id"`
	Kind           pkg.MemoryKind `json:"kind"`
	Content        string         `json:"content"`
	Importance     float64        `json:"importance"`
	Emotion        string         `json:"emotion"`
	AccessCount    int            `json:"access_count"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	Similarity     *float64       `json:"similarity,omitempty"`
}

type MemoryHandler struct {
	store *memory.Store
}

func NewMemoryHandler(store *memory.Store) *MemoryHandler {
	return &MemoryHandler{store: store}
}

// List handles GET /chats/{id}/memories. With q it returns the entries most similar
// to q (at least min, default 0), without touching access counts.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "id")
	query := r.URL.Query().Get("q")

	if query == "" {
		entries := h.store.Entries(owner)
		out := make([]MemoryView, 0, len(entries))
		for _, e := range entries {
			out = append(out, view(e, nil))
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": out})
		return
	}

	threshold := 0.0
	if s := r.URL.Query().Get("min"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || v < -1 || v > 1 {
			writeError(w, http.StatusBadRequest, "min must be a number within [-1,1]")
			return
		}
		threshold = v
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}

	found, err := h.store.FindSimilar(r.Context(), owner, query, threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]MemoryView, 0, len(found))
	for _, m := range found {
		sim := m.Similarity
		out = append(out, view(m.MemoryEntry, &sim))
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": out, "query": query})
}

// Stats handles GET /memories/stats
func (h *MemoryHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

// Delete handles DELETE /chats/{id}/memories/{memoryID}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.Forget(chi.URLParam(r, "id"), chi.URLParam(r, "memoryID"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "memory not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func view(e pkg.MemoryEntry, sim *float64) MemoryView {
	return MemoryView{
		ID:             e.ID,
		Kind:           e.Kind,
		Content:        e.Content,
		Importance:     e.Importance,
		Emotion:        e.Emotion,
		AccessCount:    e.AccessCount,
		CreatedAt:      e.CreatedAt,
		LastAccessedAt: e.LastAccessedAt,
		Similarity:     sim,
	}
}

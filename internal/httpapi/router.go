package httpapi

import (
	"persona_engine/internal/memory"
	"persona_engine/internal/orchestrator"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates the chi router with all routes and middleware.
// An empty apiKey disables authentication.
func NewRouter(orch *orchestrator.Orchestrator, mem *memory.Store, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	chatH := NewChatHandler(orch)
	r.Get("/health", Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		if mem != nil {
			r.Get("/memories/stats", NewMemoryHandler(mem).Stats)
		}

		r.Route("/chats/{id}", func(r chi.Router) {
			r.Post("/messages", chatH.PostMessage)
			r.Post("/messages/buffered", chatH.EnqueueMessage)
			r.Get("/stats", chatH.Stats)
			r.Delete("/", chatH.Reset)

			if mem != nil {
				memoryH := NewMemoryHandler(mem)
				r.Get("/memories", memoryH.List)
				r.Delete("/memories/{memoryID}", memoryH.Delete)
			}
		})
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Chat.
	r.Post("/chat", h.Chat)

	// Ingestion.
	r.Post("/ingest", h.TriggerIngest)
	r.Get("/ingest/status", h.IngestStatus)
	r.Get("/documents", h.ListDocuments)

	// Sessions.
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Get("/sessions/{id}/history", h.SessionHistory)
	r.Delete("/sessions/{id}", h.DeleteSession)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

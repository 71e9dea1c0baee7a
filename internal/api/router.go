package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/halvard/bragi/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(eng *engine.Engine, authEnabled bool, token string) chi.Router {
	h := NewHandler(eng)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Search.
	r.Get("/search", h.Search)

	// Mutation with optimistic concurrency.
	r.Patch("/notes/{id}", h.Mutate)

	// Cache invalidation for external collaborators.
	r.Post("/cache/invalidate", h.Invalidate)

	return r
}

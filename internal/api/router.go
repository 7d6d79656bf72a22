/**
 * @description
 * This file sets up the HTTP router for the subscription-service using the
 * go-chi/chi router. It maps the webhook endpoint, the internal renewal
 * trigger, and the internal subscription management routes, and applies
 * middleware for logging, recovery, timeouts, and CORS.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the service routes.
func NewRouter(h *Handler, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription service is healthy"))
	})

	// Registrar-facing webhook: notification deliveries plus the validation
	// handshake, which may arrive on either verb.
	r.Get("/webhooks/graph", h.handleWebhook)
	r.Post("/webhooks/graph", h.handleWebhook)

	// Internal server-to-server surface.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/renewals/run", h.handleRunRenewals)
		r.Post("/internal/subscriptions", h.handleRegister)
		r.Get("/internal/subscriptions", h.handleListSubscriptions)
		r.Delete("/internal/subscriptions/{id}", h.handleRevoke)
	})

	return r
}

// Package router assembles the HTTP surface: webhook callbacks, health, and
// Prometheus metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/entrenia/booking-engine/internal/wa"
)

// Config holds router configuration.
type Config struct {
	Webhook        *wa.WebhookHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Route("/webhooks/whatsapp", func(r chi.Router) {
			r.Get("/", cfg.Webhook.HandleVerification)
			r.Post("/", cfg.Webhook.HandleInbound)
		})
	}

	return r
}

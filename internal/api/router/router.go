// Package router assembles the HTTP surface of the assistant.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saludtb/tb-assistant/internal/conversation"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

// Check probes one dependency's liveness.
type Check func(ctx context.Context) error

// Config wires handlers and health checks into the router.
type Config struct {
	Logger *logging.Logger
	Chat   *conversation.Handler
	Checks map[string]Check
}

// New builds the chi router with the standard middleware stack.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler(logger, cfg.Checks))
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Chat != nil {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", cfg.Chat.PostMessage)
			r.Get("/history/{userID}", cfg.Chat.GetHistory)
			r.Get("/conversations/count", cfg.Chat.GetCount)
			r.Delete("/conversation/{userID}", cfg.Chat.DeleteConversation)
		})
	}
	return r
}

// healthHandler reports per-dependency status. Any failing check turns
// the whole response into a 503 so orchestrators stop routing traffic.
func healthHandler(logger *logging.Logger, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "component", name, "error", err)
				components[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "up"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     overall,
			"components": components,
		})
	}
}

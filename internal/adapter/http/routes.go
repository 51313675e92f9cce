package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Healthz)
	r.Get("/ws", h.hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Templates
		r.Post("/templates", h.CreateTemplate)
		r.Get("/templates", h.ListTemplates)

		// Agents
		r.Post("/agents/spawn", h.SpawnAgents)
		r.Post("/agents/terminate", h.TerminateAgents)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Get("/agents/{id}/health", h.GetAgentHealth)

		// Metrics
		r.Get("/metrics", h.GetMetrics)
		r.Get("/metrics/history", h.GetMetricsHistory)

		// Performance ranking
		r.Get("/ranking", h.GetRanking)

		// Scaling
		r.Get("/scaling/recommendation", h.GetScalingRecommendation)
		r.Post("/scaling/trigger", h.TriggerScaling)
	})
}

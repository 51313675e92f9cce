package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
	"github.com/Strob0t/AgentForge/internal/service"
)

// Handlers bundles the REST handlers over the orchestrator.
type Handlers struct {
	orch    *service.Orchestrator
	metrics *service.MetricsAggregator
	hub     *ws.Hub
	bus     eventbus.Bus
}

// NewHandlers creates the handler set.
func NewHandlers(orch *service.Orchestrator, metrics *service.MetricsAggregator, hub *ws.Hub, bus eventbus.Bus) *Handlers {
	return &Handlers{orch: orch, metrics: metrics, hub: hub, bus: bus}
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// CreateTemplate registers a new agent template.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, ok := readJSON[agent.Template](w, r)
	if !ok {
		return
	}
	registered, err := h.orch.RegisterTemplate(r.Context(), &tpl)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

// ListTemplates returns all registered templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.ListTemplates())
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

// SpawnAgents runs the spawn protocol for a batch of agents.
func (h *Handlers) SpawnAgents(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.SpawnRequest](w, r)
	if !ok {
		return
	}
	res, err := h.orch.SpawnAgents(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TerminateAgents runs the termination protocol for the listed agents.
// Per-unit failures are reported in the body, not as an HTTP error.
func (h *Handlers) TerminateAgents(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.TerminationRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.orch.TerminateAgents(r.Context(), &req))
}

// ListAgents returns agents, optionally filtered by status and type.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	status := agent.Status(r.URL.Query().Get("status"))
	agentType := r.URL.Query().Get("type")
	writeJSON(w, http.StatusOK, h.orch.ListAgents(status, agentType))
}

// GetAgent returns one agent instance.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	inst, err := h.orch.GetAgent(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetAgentHealth recomputes and returns a fresh health snapshot.
func (h *Handlers) GetAgentHealth(w http.ResponseWriter, r *http.Request) {
	hs, err := h.orch.CheckAgentHealth(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

// ---------------------------------------------------------------------------
// Metrics and ranking
// ---------------------------------------------------------------------------

// GetMetrics returns the latest lifecycle metrics snapshot.
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot(r.Context()))
}

// GetMetricsHistory returns persisted snapshots, newest first.
// Query params: since (RFC 3339, default 24h ago), limit (default 100).
func (h *Handlers) GetMetricsHistory(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	snaps, err := h.metrics.History(r.Context(), since, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// GetRanking returns the composite performance ranking, best first.
func (h *Handlers) GetRanking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Rankings(r.Context()))
}

// ---------------------------------------------------------------------------
// Scaling
// ---------------------------------------------------------------------------

// GetScalingRecommendation evaluates scaling for a template without executing.
func (h *Handlers) GetScalingRecommendation(w http.ResponseWriter, r *http.Request) {
	templateID := r.URL.Query().Get("template_id")
	if templateID == "" {
		writeError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	d, err := h.orch.ScalingRecommendation(templateID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type triggerScalingRequest struct {
	TemplateID  string `json:"template_id"`
	TargetCount int    `json:"target_count"`
}

// TriggerScaling manually scales a template to the requested count.
func (h *Handlers) TriggerScaling(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[triggerScalingRequest](w, r)
	if !ok {
		return
	}
	if req.TemplateID == "" {
		writeError(w, http.StatusBadRequest, "template_id is required")
		return
	}
	if req.TargetCount < 0 {
		writeError(w, http.StatusBadRequest, "target_count must not be negative")
		return
	}
	outcome, err := h.orch.TriggerScaling(r.Context(), req.TemplateID, req.TargetCount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// ---------------------------------------------------------------------------
// Service health
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status       string `json:"status"`
	BusConnected bool   `json:"bus_connected"`
	Agents       int    `json:"agents"`
	WSClients    int    `json:"ws_clients"`
}

// Healthz reports liveness of the control plane itself.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		BusConnected: h.bus.IsConnected(),
		Agents:       len(h.orch.ListAgents("", "")),
		WSClients:    h.hub.ConnectionCount(),
	}
	status := http.StatusOK
	if !resp.BusConnected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

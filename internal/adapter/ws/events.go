package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventAgentStatus     = "agent.status"
	EventAgentHealth     = "agent.health"
	EventAgentSpawned    = "agent.spawned"
	EventAgentTerminated = "agent.terminated"
	EventAgentRecovered  = "agent.recovered"
	EventScalingDecision = "scaling.decision"
	EventMetricsSnapshot = "metrics.snapshot"
)

// AgentStatusEvent is broadcast when an agent transitions to a new status.
type AgentStatusEvent struct {
	AgentID    string `json:"agent_id"`
	TemplateID string `json:"template_id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
}

// AgentHealthEvent is broadcast after each health evaluation cycle.
type AgentHealthEvent struct {
	AgentID string   `json:"agent_id"`
	Overall float64  `json:"overall"`
	Trend   string   `json:"trend"`
	Issues  []string `json:"issues,omitempty"`
}

// AgentLifecycleEvent is broadcast when an agent is spawned, terminated, or
// recovered.
type AgentLifecycleEvent struct {
	AgentID    string `json:"agent_id"`
	TemplateID string `json:"template_id"`
	Type       string `json:"type"`
	Reason     string `json:"reason,omitempty"`
}

// ScalingDecisionEvent is broadcast when the scaling engine produces a decision.
type ScalingDecisionEvent struct {
	TemplateID   string  `json:"template_id"`
	AgentType    string  `json:"agent_type"`
	Action       string  `json:"action"`
	CurrentCount int     `json:"current_count"`
	TargetCount  int     `json:"target_count"`
	Confidence   float64 `json:"confidence"`
	Urgency      string  `json:"urgency"`
	Executed     bool    `json:"executed"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

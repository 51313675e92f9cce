package eventbus

// HeartbeatPayload is sent periodically by every agent process. Status is
// optional; when present it carries the agent's self-reported workload state
// ("idle", "active", "busy").
type HeartbeatPayload struct {
	AgentID        string  `json:"agent_id"`
	Status         string  `json:"status,omitempty"`
	CPUFraction    float64 `json:"cpu_fraction,omitempty"`
	MemoryFraction float64 `json:"memory_fraction,omitempty"`
	MemoryMB       int     `json:"memory_mb,omitempty"`
}

// TaskCompletedPayload reports a successfully finished task.
type TaskCompletedPayload struct {
	AgentID        string  `json:"agent_id"`
	TaskID         string  `json:"task_id"`
	Quality        float64 `json:"quality,omitempty"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
}

// TaskFailedPayload reports a failed task.
type TaskFailedPayload struct {
	AgentID        string  `json:"agent_id"`
	TaskID         string  `json:"task_id"`
	Error          string  `json:"error"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
}

// AgentErrorPayload reports an agent-level fault.
type AgentErrorPayload struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// ResourcePressurePayload signals host-level resource pressure.
type ResourcePressurePayload struct {
	Severity string `json:"severity"` // "low" | "medium" | "high" | "critical"
}

// DemandChangePayload signals a workload demand shift for one agent type.
type DemandChangePayload struct {
	AgentType string  `json:"agent_type"`
	Factor    float64 `json:"factor,omitempty"` // relative demand multiplier
}

// AgentEventPayload is the common shape of per-agent outbound notifications.
type AgentEventPayload struct {
	AgentID    string `json:"agent_id"`
	TemplateID string `json:"template_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BatchEventPayload is the shape of batch spawn/termination notifications.
type BatchEventPayload struct {
	TemplateID string   `json:"template_id,omitempty"`
	AgentIDs   []string `json:"agent_ids"`
	Success    bool     `json:"success"`
	Failures   []string `json:"failures,omitempty"`
}

// Package scaling defines the scaling decision domain types.
package scaling

// Action is the scaling engine's recommended action.
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionNone      Action = "no_action"
)

// Urgency ranks how soon a decision should be acted on.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Decision is recomputed on every scaling tick and never stored beyond the
// tick that produced it, except inside emitted events.
type Decision struct {
	TemplateID   string   `json:"template_id"`
	AgentType    string   `json:"agent_type"`
	Action       Action   `json:"action"`
	CurrentCount int      `json:"current_count"`
	TargetCount  int      `json:"target_count"`
	Utilization  float64  `json:"utilization"`
	Reasons      []string `json:"reasons"`
	Confidence   float64  `json:"confidence"`
	Urgency      Urgency  `json:"urgency"`
}

// Executable reports whether the orchestrator should act on the decision.
// Confidence must strictly exceed 0.7; no_action is never executed.
func (d *Decision) Executable() bool {
	return d.Action != ActionNone && d.Confidence > 0.7
}

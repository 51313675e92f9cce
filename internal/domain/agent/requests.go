package agent

import "errors"

// SpawnRequest asks the orchestrator to start Count agents from a template.
type SpawnRequest struct {
	TemplateID string            `json:"template_id"`
	Count      int               `json:"count"`
	NamePrefix string            `json:"name_prefix,omitempty"`
	ExtraEnv   map[string]string `json:"extra_env,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Validate checks the request shape before any work starts.
func (r *SpawnRequest) Validate() error {
	if r.TemplateID == "" {
		return errors.New("template_id is required")
	}
	if r.Count < 1 {
		return errors.New("count must be at least 1")
	}
	return nil
}

// UnitFailure is one per-unit failure inside a batch. Unit failures are
// isolated; they never abort sibling units.
type UnitFailure struct {
	AgentID string `json:"agent_id,omitempty"`
	Reason  string `json:"reason"`
}

// SpawnResult aggregates the outcome of a SpawnRequest. Success is false if
// any unit failed; SpawnedIDs always lists the units that did succeed.
type SpawnResult struct {
	Success   bool          `json:"success"`
	SpawnedIDs []string     `json:"spawned_ids,omitempty"`
	Failures  []UnitFailure `json:"failures,omitempty"`
}

// TerminationRequest asks the orchestrator to stop the listed agents.
type TerminationRequest struct {
	AgentIDs []string `json:"agent_ids"`
	Graceful bool     `json:"graceful"`
	Reason   string   `json:"reason,omitempty"`
}

// Validate checks the request shape.
func (r *TerminationRequest) Validate() error {
	if len(r.AgentIDs) == 0 {
		return errors.New("agent_ids is required")
	}
	return nil
}

// TerminationResult aggregates the outcome of a TerminationRequest.
type TerminationResult struct {
	Success       bool          `json:"success"`
	TerminatedIDs []string      `json:"terminated_ids,omitempty"`
	Failures      []UnitFailure `json:"failures,omitempty"`
}

package agent

import "time"

// Status represents the lifecycle state of an agent instance.
type Status string

const (
	StatusSpawning     Status = "spawning"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusIdle         Status = "idle"
	StatusActive       Status = "active"
	StatusBusy         Status = "busy"
	StatusDegraded     Status = "degraded"
	StatusUnhealthy    Status = "unhealthy"
	StatusTerminating  Status = "terminating"
	StatusTerminated   Status = "terminated"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusTerminated || s == StatusFailed
}

// Running reports whether the instance has a live process to account for.
func (s Status) Running() bool {
	switch s {
	case StatusInitializing, StatusReady, StatusIdle, StatusActive, StatusBusy,
		StatusDegraded, StatusUnhealthy:
		return true
	}
	return false
}

// Servable reports whether the instance counts toward serving capacity.
func (s Status) Servable() bool {
	return !s.Terminal() && s != StatusSpawning && s != StatusTerminating
}

// transitions is the forward edge set of the lifecycle state machine.
// StatusFailed is additionally reachable from any running state, and the
// unhealthy -> idle backward edge is reserved for the recovery engine.
var transitions = map[Status][]Status{
	StatusSpawning:     {StatusInitializing, StatusFailed},
	StatusInitializing: {StatusReady, StatusFailed},
	StatusReady:        {StatusIdle, StatusActive, StatusBusy, StatusDegraded, StatusUnhealthy, StatusTerminating},
	StatusIdle:         {StatusActive, StatusBusy, StatusDegraded, StatusUnhealthy, StatusTerminating},
	StatusActive:       {StatusIdle, StatusBusy, StatusDegraded, StatusUnhealthy, StatusTerminating},
	StatusBusy:         {StatusIdle, StatusActive, StatusDegraded, StatusUnhealthy, StatusTerminating},
	StatusDegraded:     {StatusIdle, StatusActive, StatusBusy, StatusUnhealthy, StatusTerminating},
	StatusUnhealthy:    {StatusIdle, StatusDegraded, StatusTerminating},
	StatusTerminating:  {StatusTerminated, StatusFailed},
}

// CanTransition reports whether moving from s to next is a legal state
// machine edge.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed && s.Running() {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ErrorType classifies an agent-level fault.
type ErrorType string

const (
	ErrorTypeSpawn    ErrorType = "spawn"
	ErrorTypeRuntime  ErrorType = "runtime"
	ErrorTypeHealth   ErrorType = "health"
	ErrorTypeRecovery ErrorType = "recovery"
	ErrorTypeResource ErrorType = "resource"
)

// Error is one recorded agent-level fault.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// maxErrorHistory caps the per-instance error ring; the oldest entry is
// dropped once the cap is reached.
const maxErrorHistory = 100

// TaskAssignment records one task handed to an agent.
type TaskAssignment struct {
	TaskID     string    `json:"task_id"`
	AssignedAt time.Time `json:"assigned_at"`
	Completed  bool      `json:"completed"`
	Failed     bool      `json:"failed"`
}

// Capability tracks one declared capability and whether it has been verified
// from the agent's own output.
type Capability struct {
	Name       string  `json:"name"`
	Declared   bool    `json:"declared"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// ResourceUsage is a point-in-time resource snapshot for an instance.
type ResourceUsage struct {
	CPUFraction    float64   `json:"cpu_fraction"`
	MemoryFraction float64   `json:"memory_fraction"`
	MemoryMB       int       `json:"memory_mb"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Instance is the mutable unit of lifecycle tracking. One Instance exists per
// spawned process; once running, a terminated instance is retained for
// historical metrics rather than deleted.
type Instance struct {
	ID           string             `json:"id"`
	TemplateID   string             `json:"template_id"`
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Status       Status             `json:"status"`
	PID          int                `json:"pid,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	LastSeen     time.Time          `json:"last_seen"`
	Health       HealthStatus       `json:"health"`
	Performance  PerformanceMetrics `json:"performance"`
	Resources    ResourceUsage      `json:"resources"`
	Capabilities []Capability       `json:"capabilities,omitempty"`
	Assignments  []TaskAssignment   `json:"assignments,omitempty"`
	Errors       []Error            `json:"errors,omitempty"`
}

// Clone returns a copy whose slice fields are detached from the original, so
// a reader of the copy never aliases state mutated under the registry lock.
func (i *Instance) Clone() Instance {
	out := *i
	out.Capabilities = append([]Capability(nil), i.Capabilities...)
	out.Assignments = append([]TaskAssignment(nil), i.Assignments...)
	out.Errors = append([]Error(nil), i.Errors...)
	out.Health.Issues = append([]string(nil), i.Health.Issues...)
	return out
}

// RecordError appends a fault to the bounded error history, evicting the
// oldest entry past the cap.
func (i *Instance) RecordError(errType ErrorType, msg string, at time.Time) {
	i.Errors = append(i.Errors, Error{Type: errType, Message: msg, Timestamp: at})
	if len(i.Errors) > maxErrorHistory {
		i.Errors = i.Errors[len(i.Errors)-maxErrorHistory:]
	}
}

// VerifyCapability marks a declared capability as verified with full
// confidence, or records a newly inferred one at lower confidence.
func (i *Instance) VerifyCapability(name string) {
	for idx := range i.Capabilities {
		if i.Capabilities[idx].Name == name {
			i.Capabilities[idx].Verified = true
			i.Capabilities[idx].Confidence = 1.0
			return
		}
	}
	i.Capabilities = append(i.Capabilities, Capability{
		Name:       name,
		Verified:   true,
		Confidence: 0.5, // inferred from output, never declared
	})
}

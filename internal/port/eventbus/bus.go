// Package eventbus defines the publish/subscribe event bus port (interface).
package eventbus

import "context"

// Handler processes a message received from the bus.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Bus is the port interface for publishing and subscribing to lifecycle
// events. Inbound signals (heartbeats, task outcomes, pressure) and outbound
// lifecycle notifications both travel through it.
type Bus interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the bus connection immediately.
	Close() error

	// IsConnected reports whether the bus is currently connected.
	IsConnected() bool
}

// Inbound subjects: signals produced by agents and the surrounding platform.
const (
	SubjectAgentHeartbeat  = "agent.heartbeat"     // first heartbeat doubles as the readiness signal
	SubjectTaskCompleted   = "agent.task.completed"
	SubjectTaskFailed      = "agent.task.failed"
	SubjectAgentError      = "agent.error"
	SubjectResourcePressure = "system.resource.pressure"
	SubjectDemandChange    = "workload.demand"
)

// Outbound subjects: lifecycle notifications emitted by the orchestrator.
const (
	SubjectTemplateRegistered = "template.registered"
	SubjectAgentsSpawned      = "agents.spawned"    // batch result
	SubjectAgentsTerminated   = "agents.terminated" // batch result
	SubjectAgentSpawned       = "agent.spawned"
	SubjectAgentTerminated    = "agent.terminated"
	SubjectAgentRecovered     = "agent.recovered"
	SubjectRecoveryFailed     = "agent.recovery.failed"
	SubjectUnexpectedExit     = "agent.unexpected.exit"
	SubjectScalingExecuted    = "scaling.executed"
	SubjectScalingFailed      = "scaling.failed"
	SubjectPressureCritical   = "system.pressure.critical"
	SubjectShutdown           = "lifecycle.shutdown"
)

package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentforge"

// Metrics holds all AgentForge metric instruments.
type Metrics struct {
	AgentsSpawned     metric.Int64Counter
	AgentsTerminated  metric.Int64Counter
	SpawnFailures     metric.Int64Counter
	UnexpectedExits   metric.Int64Counter
	RecoveryAttempts  metric.Int64Counter
	RecoverySuccesses metric.Int64Counter
	ScalingActions    metric.Int64Counter
	SpawnDuration     metric.Float64Histogram
	AgentHealth       metric.Float64Histogram
	Utilization       metric.Float64Gauge
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AgentsSpawned, err = meter.Int64Counter("agentforge.agents.spawned",
		metric.WithDescription("Number of agents spawned"))
	if err != nil {
		return nil, err
	}

	m.AgentsTerminated, err = meter.Int64Counter("agentforge.agents.terminated",
		metric.WithDescription("Number of agents terminated"))
	if err != nil {
		return nil, err
	}

	m.SpawnFailures, err = meter.Int64Counter("agentforge.spawn.failures",
		metric.WithDescription("Number of failed spawn attempts"))
	if err != nil {
		return nil, err
	}

	m.UnexpectedExits, err = meter.Int64Counter("agentforge.agents.unexpected_exits",
		metric.WithDescription("Number of agent processes that exited without being asked"))
	if err != nil {
		return nil, err
	}

	m.RecoveryAttempts, err = meter.Int64Counter("agentforge.recovery.attempts",
		metric.WithDescription("Number of recovery attempts"))
	if err != nil {
		return nil, err
	}

	m.RecoverySuccesses, err = meter.Int64Counter("agentforge.recovery.successes",
		metric.WithDescription("Number of successful recoveries"))
	if err != nil {
		return nil, err
	}

	m.ScalingActions, err = meter.Int64Counter("agentforge.scaling.actions",
		metric.WithDescription("Number of executed scaling actions"))
	if err != nil {
		return nil, err
	}

	m.SpawnDuration, err = meter.Float64Histogram("agentforge.spawn.duration_seconds",
		metric.WithDescription("Time from spawn request to agent ready"))
	if err != nil {
		return nil, err
	}

	m.AgentHealth, err = meter.Float64Histogram("agentforge.agent.health",
		metric.WithDescription("Overall agent health score distribution"))
	if err != nil {
		return nil, err
	}

	m.Utilization, err = meter.Float64Gauge("agentforge.pool.utilization",
		metric.WithDescription("Fraction of agents in status active or busy"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Package metrics defines the aggregate lifecycle metrics snapshot.
package metrics

import (
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
)

// Snapshot is a periodically recomputed aggregate over the instance set.
// It is derived, never authoritative: every field is recomputable from the
// agent registry and the event history.
type Snapshot struct {
	TotalAgents        int                     `json:"total_agents"`
	ByStatus           map[agent.Status]int    `json:"by_status"`
	ByType             map[string]int          `json:"by_type"`
	SpawnRate          float64                 `json:"spawn_rate"`       // spawns per minute, 1h window
	TerminationRate    float64                 `json:"termination_rate"` // terminations per minute, 1h window
	AvgLifetimeSeconds float64                 `json:"avg_lifetime_seconds"`
	AvgHealth          float64                 `json:"avg_health"`
	Utilization        float64                 `json:"utilization"`
	FailureRate        float64                 `json:"failure_rate"`
	RecoveryRate       float64                 `json:"recovery_rate"` // successful / attempted recoveries
	ComputedAt         time.Time               `json:"computed_at"`
}

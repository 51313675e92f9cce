package agent

import "time"

// Trend classifies the direction of an agent's health between checks.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// HealthStatus is the full health snapshot computed on every check. Each
// check replaces the previous snapshot outright; there is no smoothing.
type HealthStatus struct {
	Overall        float64   `json:"overall"`
	Responsiveness float64   `json:"responsiveness"`
	Performance    float64   `json:"performance"`
	Reliability    float64   `json:"reliability"`
	Resources      float64   `json:"resources"`
	Connectivity   float64   `json:"connectivity"`
	Issues         []string  `json:"issues,omitempty"`
	Trend          Trend     `json:"trend"`
	CheckedAt      time.Time `json:"checked_at"`
}

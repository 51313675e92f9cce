package agent

import "time"

// PerformanceMetrics tracks task outcomes for one instance. SuccessRate,
// Efficiency and Reliability are recomputed on every task-completion or
// task-failure event.
type PerformanceMetrics struct {
	TasksCompleted  int       `json:"tasks_completed"`
	TasksFailed     int       `json:"tasks_failed"`
	AvgResponseMs   float64   `json:"avg_response_ms"`
	SuccessRate     float64   `json:"success_rate"`
	Throughput      float64   `json:"throughput"` // tasks per minute
	Efficiency      float64   `json:"efficiency"`
	Reliability     float64   `json:"reliability"`
	QualityScore    float64   `json:"quality_score"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	LastActivity    time.Time `json:"last_activity"`
}

// Ranked pairs an instance with its composite performance score. Rank is
// assigned by position after a stable descending sort.
type Ranked struct {
	AgentID string  `json:"agent_id"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

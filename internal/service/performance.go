package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/cache"
)

// Composite score weights. They sum to 1.
const (
	weightSuccessRate  = 0.30
	weightResponseTime = 0.20
	weightThroughput   = 0.20
	weightReliability  = 0.15
	weightEfficiency   = 0.15
)

// Normalization anchors for the composite score factors.
const (
	responseTimeCeilingMs = 10000 // avg response at or above this scores 0
	throughputCeiling     = 100   // tasks/min at or above this scores 1
)

const rankingCacheKey = "ranking"

// PerformanceTracker folds task outcomes into per-instance metrics and
// produces the composite ranking. Derived fields are recomputed on every
// outcome; nothing is smoothed or decayed.
type PerformanceTracker struct {
	registry *Registry
	cache    cache.Cache
	cacheTTL time.Duration

	now func() time.Time
}

// NewPerformanceTracker creates a tracker over the given registry. cache may
// be nil, in which case rankings are recomputed on every call.
func NewPerformanceTracker(registry *Registry, c cache.Cache, cfg config.Cache) *PerformanceTracker {
	return &PerformanceTracker{
		registry: registry,
		cache:    c,
		cacheTTL: cfg.TTL,
		now:      time.Now,
	}
}

// RecordCompletion folds one successful task into an instance's metrics.
func (p *PerformanceTracker) RecordCompletion(agentID, taskID string, responseMs, quality float64) error {
	now := p.now()
	err := p.registry.Update(agentID, func(inst *agent.Instance) error {
		pm := &inst.Performance
		pm.TasksCompleted++
		foldOutcome(pm, responseMs, now, inst.StartedAt)
		if quality > 0 {
			n := float64(pm.TasksCompleted)
			pm.QualityScore = (pm.QualityScore*(n-1) + quality) / n
		}
		markAssignment(inst, taskID, true)
		inst.LastSeen = now
		return nil
	})
	if err != nil {
		return err
	}
	p.invalidateRanking()
	return nil
}

// RecordFailure folds one failed task into an instance's metrics.
func (p *PerformanceTracker) RecordFailure(agentID, taskID, reason string, responseMs float64) error {
	now := p.now()
	err := p.registry.Update(agentID, func(inst *agent.Instance) error {
		pm := &inst.Performance
		pm.TasksFailed++
		foldOutcome(pm, responseMs, now, inst.StartedAt)
		markAssignment(inst, taskID, false)
		inst.RecordError(agent.ErrorTypeRuntime, reason, now)
		inst.LastSeen = now
		return nil
	})
	if err != nil {
		return err
	}
	p.invalidateRanking()
	return nil
}

// foldOutcome recomputes the derived metrics after one task outcome.
// The incremental mean uses the combined outcome count so failures also move
// the average response time.
func foldOutcome(pm *agent.PerformanceMetrics, responseMs float64, now, startedAt time.Time) {
	n := float64(pm.TasksCompleted + pm.TasksFailed)
	if responseMs > 0 {
		pm.AvgResponseMs = (pm.AvgResponseMs*(n-1) + responseMs) / n
	}
	pm.SuccessRate = float64(pm.TasksCompleted) / n

	uptime := now.Sub(startedAt)
	pm.UptimeSeconds = uptime.Seconds()
	if minutes := uptime.Minutes(); minutes > 0 {
		pm.Throughput = float64(pm.TasksCompleted) / minutes
	}

	avg := pm.AvgResponseMs
	if avg < 1 {
		avg = 1
	}
	pm.Efficiency = pm.SuccessRate * (1000 / avg)
	if pm.Efficiency > 1 {
		pm.Efficiency = 1
	}
	pm.Reliability = pm.SuccessRate * pm.SuccessRate
	pm.LastActivity = now
}

// markAssignment closes out the matching open task assignment, if tracked.
func markAssignment(inst *agent.Instance, taskID string, completed bool) {
	for i := range inst.Assignments {
		if inst.Assignments[i].TaskID == taskID && !inst.Assignments[i].Completed && !inst.Assignments[i].Failed {
			inst.Assignments[i].Completed = completed
			inst.Assignments[i].Failed = !completed
			return
		}
	}
}

// Score computes the composite performance score for one metrics set,
// clamped to [0, 1].
func Score(pm agent.PerformanceMetrics) float64 {
	rtf := 1 - pm.AvgResponseMs/responseTimeCeilingMs
	if rtf < 0 {
		rtf = 0
	}
	tpf := pm.Throughput / throughputCeiling
	if tpf > 1 {
		tpf = 1
	}

	score := pm.SuccessRate*weightSuccessRate +
		rtf*weightResponseTime +
		tpf*weightThroughput +
		pm.Reliability*weightReliability +
		pm.Efficiency*weightEfficiency

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Rankings returns all servable agents ordered by composite score, best
// first. Results are cached briefly since dashboards poll this.
func (p *PerformanceTracker) Rankings(ctx context.Context) []agent.Ranked {
	if p.cache != nil {
		if data, ok, err := p.cache.Get(ctx, rankingCacheKey); err == nil && ok {
			var cached []agent.Ranked
			if json.Unmarshal(data, &cached) == nil {
				return cached
			}
		}
	}

	var ranked []agent.Ranked
	for _, inst := range p.registry.List(Filter{}) {
		if !inst.Status.Servable() {
			continue
		}
		ranked = append(ranked, agent.Ranked{
			AgentID: inst.ID,
			Type:    inst.Type,
			Score:   Score(inst.Performance),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	if p.cache != nil {
		if data, err := json.Marshal(ranked); err == nil {
			_ = p.cache.Set(ctx, rankingCacheKey, data, p.cacheTTL)
		}
	}
	return ranked
}

func (p *PerformanceTracker) invalidateRanking() {
	if p.cache != nil {
		_ = p.cache.Delete(context.Background(), rankingCacheKey)
	}
}

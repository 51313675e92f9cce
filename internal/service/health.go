package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/broadcast"
)

// Heartbeat staleness bounds for the responsiveness sub-score.
const (
	responsiveFresh = 30 * time.Second
	responsiveStale = 60 * time.Second
)

// trendEpsilon is the minimum overall-score change that counts as a trend.
const trendEpsilon = 0.05

// HealthMonitor recomputes agent health on every check cycle and drives the
// degraded/unhealthy status edges. Each check replaces the previous snapshot;
// there is no smoothing.
type HealthMonitor struct {
	registry *Registry
	catalog  *TemplateCatalog
	hub      broadcast.Broadcaster
	cfg      config.Lifecycle

	now func() time.Time
}

// NewHealthMonitor creates a health monitor over the given registry.
func NewHealthMonitor(registry *Registry, catalog *TemplateCatalog, hub broadcast.Broadcaster, cfg config.Lifecycle) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		catalog:  catalog,
		hub:      hub,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Evaluate computes a full health snapshot for one instance. processLive
// reflects whether the OS process is currently running.
func (h *HealthMonitor) Evaluate(inst *agent.Instance, processLive bool, now time.Time) agent.HealthStatus {
	hs := agent.HealthStatus{CheckedAt: now}

	// Responsiveness from heartbeat recency.
	since := now.Sub(inst.LastSeen)
	switch {
	case since < responsiveFresh:
		hs.Responsiveness = 1.0
	case since < responsiveStale:
		hs.Responsiveness = 0.5
	default:
		hs.Responsiveness = 0
	}

	hs.Performance = inst.Performance.Efficiency
	hs.Reliability = inst.Performance.Reliability

	// Resource headroom: full score with no usage, zero when saturated.
	cpuRoom := 1 - inst.Resources.CPUFraction
	if cpuRoom < 0 {
		cpuRoom = 0
	}
	memRoom := 1 - inst.Resources.MemoryFraction
	if memRoom < 0 {
		memRoom = 0
	}
	hs.Resources = (cpuRoom + memRoom) / 2

	if processLive {
		hs.Connectivity = 1.0
	}

	hs.Overall = (hs.Responsiveness + hs.Performance + hs.Reliability + hs.Resources + hs.Connectivity) / 5

	if hs.Responsiveness == 0 {
		hs.Issues = append(hs.Issues, "no recent heartbeat")
	}
	if hs.Connectivity == 0 {
		hs.Issues = append(hs.Issues, "process not running")
	}
	if hs.Resources < 0.2 {
		hs.Issues = append(hs.Issues, "resource saturation")
	}
	if hs.Reliability < 0.5 && inst.Performance.TasksCompleted+inst.Performance.TasksFailed > 0 {
		hs.Issues = append(hs.Issues, "low reliability")
	}

	diff := hs.Overall - inst.Health.Overall
	switch {
	case diff > trendEpsilon:
		hs.Trend = agent.TrendImproving
	case diff < -trendEpsilon:
		hs.Trend = agent.TrendDegrading
	default:
		hs.Trend = agent.TrendStable
	}

	return hs
}

// CheckAll evaluates every running instance, stores the snapshot, applies the
// degraded/unhealthy status edges from the template's thresholds, and returns
// the IDs of agents whose health fell below the critical threshold.
func (h *HealthMonitor) CheckAll(ctx context.Context) []string {
	now := h.now()
	var critical []string

	for _, snapshot := range h.registry.List(Filter{}) {
		if !snapshot.Status.Running() {
			continue
		}

		proc := h.registry.Process(snapshot.ID)
		processLive := proc != nil && proc.Running()

		var (
			hs         agent.HealthStatus
			nextStatus agent.Status
		)
		err := h.registry.Update(snapshot.ID, func(inst *agent.Instance) error {
			hs = h.Evaluate(inst, processLive, now)
			inst.Health = hs
			if hs.Overall < h.cfg.CriticalHealth {
				inst.RecordError(agent.ErrorTypeHealth, "health below critical threshold", now)
			}

			nextStatus = h.nextStatus(inst, hs)
			if nextStatus != "" && inst.Status.CanTransition(nextStatus) {
				inst.Status = nextStatus
			} else {
				nextStatus = ""
			}
			return nil
		})
		if err != nil {
			continue // instance disappeared between List and Update
		}

		if nextStatus != "" {
			slog.Info("health status change",
				"agent_id", snapshot.ID, "status", nextStatus, "overall", hs.Overall)
			h.hub.BroadcastEvent(ctx, ws.EventAgentStatus, ws.AgentStatusEvent{
				AgentID:    snapshot.ID,
				TemplateID: snapshot.TemplateID,
				Type:       snapshot.Type,
				Status:     string(nextStatus),
			})
		}

		h.hub.BroadcastEvent(ctx, ws.EventAgentHealth, ws.AgentHealthEvent{
			AgentID: snapshot.ID,
			Overall: hs.Overall,
			Trend:   string(hs.Trend),
			Issues:  hs.Issues,
		})

		if hs.Overall < h.cfg.CriticalHealth {
			critical = append(critical, snapshot.ID)
		}
	}

	return critical
}

// nextStatus maps an overall score onto the degraded/unhealthy edges using
// the template's thresholds. Returns "" when no change is warranted.
func (h *HealthMonitor) nextStatus(inst *agent.Instance, hs agent.HealthStatus) agent.Status {
	healthy, unhealthy := 0.7, 0.4
	if t, err := h.catalog.Get(inst.TemplateID); err == nil {
		if t.HealthCheck.HealthyThreshold > 0 {
			healthy = t.HealthCheck.HealthyThreshold
		}
		if t.HealthCheck.UnhealthyThreshold > 0 {
			unhealthy = t.HealthCheck.UnhealthyThreshold
		}
	}

	switch {
	case hs.Overall < unhealthy:
		if inst.Status != agent.StatusUnhealthy {
			return agent.StatusUnhealthy
		}
	case hs.Overall < healthy:
		if inst.Status != agent.StatusDegraded && inst.Status != agent.StatusUnhealthy {
			return agent.StatusDegraded
		}
	default:
		// Recovered above the healthy threshold on its own.
		if inst.Status == agent.StatusDegraded {
			return agent.StatusIdle
		}
	}
	return ""
}

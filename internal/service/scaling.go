package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/scaling"
)

// Default decision thresholds, used when the template does not override them.
const (
	defaultScaleUpThreshold   = 0.8
	defaultScaleDownThreshold = 0.3
)

// ScalingEngine produces scale up/down decisions per template from current
// utilization. Decisions are recomputed on every tick and never stored beyond
// the tick that produced them.
type ScalingEngine struct {
	registry *Registry
	catalog  *TemplateCatalog
	cfg      config.Lifecycle

	mu            sync.Mutex
	lastScaled    map[string]time.Time
	pressureUntil time.Time

	now func() time.Time
}

// NewScalingEngine creates a scaling engine over the given registry and catalog.
func NewScalingEngine(registry *Registry, catalog *TemplateCatalog, cfg config.Lifecycle) *ScalingEngine {
	return &ScalingEngine{
		registry:   registry,
		catalog:    catalog,
		cfg:        cfg,
		lastScaled: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Utilization returns the fraction of a template's non-terminal instances
// that are currently working (active or busy). Zero instances yields zero.
func (s *ScalingEngine) Utilization(templateID string) float64 {
	var total, working int
	for _, inst := range s.registry.List(Filter{}) {
		if inst.TemplateID != templateID || inst.Status.Terminal() {
			continue
		}
		total++
		if inst.Status == agent.StatusActive || inst.Status == agent.StatusBusy {
			working++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(working) / float64(total)
}

// Evaluate computes the scaling decision for one template.
func (s *ScalingEngine) Evaluate(templateID string) (scaling.Decision, error) {
	t, err := s.catalog.Get(templateID)
	if err != nil {
		return scaling.Decision{}, err
	}

	now := s.now()
	util := s.Utilization(templateID)
	current := s.registry.CountByTemplate(templateID)

	d := scaling.Decision{
		TemplateID:   templateID,
		AgentType:    t.Type,
		Action:       scaling.ActionNone,
		CurrentCount: current,
		TargetCount:  current,
		Utilization:  util,
		Confidence:   0.9,
		Urgency:      scaling.UrgencyLow,
	}

	if !t.Scaling.Enabled {
		d.Reasons = append(d.Reasons, "scaling disabled for template")
		return d, nil
	}

	upAt := t.Scaling.ScaleUpThreshold
	if upAt <= 0 {
		upAt = defaultScaleUpThreshold
	}
	downAt := t.Scaling.ScaleDownThreshold
	if downAt <= 0 {
		downAt = defaultScaleDownThreshold
	}

	switch {
	case util > upAt && current < t.Scaling.MaxInstances:
		s.mu.Lock()
		inPressure := now.Before(s.pressureUntil)
		inCooldown := now.Sub(s.lastScaled[templateID]) < t.Scaling.Cooldown
		s.mu.Unlock()

		if inPressure {
			d.Reasons = append(d.Reasons, "scale-up deferred: resource pressure cooldown")
			return d, nil
		}
		if inCooldown {
			d.Reasons = append(d.Reasons, "scale-up deferred: template cooldown")
			return d, nil
		}

		d.Action = scaling.ActionScaleUp
		d.TargetCount = min(current+2, t.Scaling.MaxInstances)
		d.Confidence = 0.8
		d.Urgency = scaling.UrgencyMedium
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("utilization %.2f above threshold %.2f", util, upAt))

	case util < downAt && current > t.Scaling.MinInstances:
		s.mu.Lock()
		inCooldown := now.Sub(s.lastScaled[templateID]) < t.Scaling.Cooldown
		s.mu.Unlock()

		if inCooldown {
			d.Reasons = append(d.Reasons, "scale-down deferred: template cooldown")
			return d, nil
		}

		d.Action = scaling.ActionScaleDown
		d.TargetCount = max(current-1, t.Scaling.MinInstances)
		d.Confidence = 0.7
		d.Urgency = scaling.UrgencyLow
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("utilization %.2f below threshold %.2f", util, downAt))

	default:
		d.Reasons = append(d.Reasons, "utilization within bounds")
	}

	return d, nil
}

// EvaluateAll computes decisions for every registered template.
func (s *ScalingEngine) EvaluateAll() []scaling.Decision {
	var decisions []scaling.Decision
	for _, t := range s.catalog.List() {
		d, err := s.Evaluate(t.ID)
		if err != nil {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// MarkScaled records that a scaling action executed for a template, starting
// its cooldown window.
func (s *ScalingEngine) MarkScaled(templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScaled[templateID] = s.now()
}

// NotePressure records a resource pressure signal. Critical pressure defers
// scale-ups for the configured cooldown.
func (s *ScalingEngine) NotePressure(severity string) bool {
	if severity != "critical" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressureUntil = s.now().Add(s.cfg.PressureCooldown)
	return true
}

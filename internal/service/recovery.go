package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/broadcast"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
	"github.com/Strob0t/AgentForge/internal/port/launcher"
	"github.com/Strob0t/AgentForge/internal/resilience"
)

// RelaunchFunc restarts the process behind an instance. Wired by the
// orchestrator so recovery reuses the same launch plumbing as spawning.
type RelaunchFunc func(ctx context.Context, inst agent.Instance) (launcher.Process, error)

// RecoveryEngine restores unhealthy agents to a servable state. Repeated
// failures trip a per-instance circuit breaker, quarantining the agent for a
// configured window instead of retrying forever.
type RecoveryEngine struct {
	registry *Registry
	bus      eventbus.Bus
	hub      broadcast.Broadcaster
	cfg      config.Recovery
	relaunch RelaunchFunc

	mu        sync.Mutex
	breakers  map[string]*resilience.Breaker
	attempted int
	succeeded int

	now func() time.Time
}

// NewRecoveryEngine creates a recovery engine. relaunch is set later by the
// orchestrator via SetRelaunch.
func NewRecoveryEngine(registry *Registry, bus eventbus.Bus, hub broadcast.Broadcaster, cfg config.Recovery) *RecoveryEngine {
	return &RecoveryEngine{
		registry: registry,
		bus:      bus,
		hub:      hub,
		cfg:      cfg,
		breakers: make(map[string]*resilience.Breaker),
		now:      time.Now,
	}
}

// SetRelaunch wires the process relaunch function.
func (r *RecoveryEngine) SetRelaunch(fn RelaunchFunc) { r.relaunch = fn }

// Stats returns the lifetime recovery attempt and success counts.
func (r *RecoveryEngine) Stats() (attempted, succeeded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempted, r.succeeded
}

func (r *RecoveryEngine) breaker(agentID string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[agentID]
	if !ok {
		b = resilience.NewBreaker(r.cfg.MaxAttempts, r.cfg.Quarantine)
		r.breakers[agentID] = b
	}
	return b
}

// Recover attempts to return one agent to idle. Quarantined agents are left
// alone until their window elapses.
func (r *RecoveryEngine) Recover(ctx context.Context, agentID string) error {
	inst, err := r.registry.Get(agentID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() || inst.Status == agent.StatusTerminating {
		return nil
	}

	r.mu.Lock()
	r.attempted++
	r.mu.Unlock()

	err = r.breaker(agentID).Execute(func() error {
		return r.attempt(ctx, inst)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = fmt.Errorf("recover %s: %w", agentID, domain.ErrQuarantined)
		}
		now := r.now()
		_ = r.registry.Update(agentID, func(in *agent.Instance) error {
			in.RecordError(agent.ErrorTypeRecovery, err.Error(), now)
			return nil
		})
		r.publish(ctx, eventbus.SubjectRecoveryFailed, inst, err.Error())
		slog.Warn("recovery failed", "agent_id", agentID, "error", err)
		return err
	}

	r.mu.Lock()
	r.succeeded++
	r.mu.Unlock()

	r.publish(ctx, eventbus.SubjectAgentRecovered, inst, "")
	r.hub.BroadcastEvent(ctx, ws.EventAgentRecovered, ws.AgentLifecycleEvent{
		AgentID:    inst.ID,
		TemplateID: inst.TemplateID,
		Type:       inst.Type,
	})
	slog.Info("agent recovered", "agent_id", agentID)
	return nil
}

// RecoverAll runs recovery for every listed agent, tolerating individual
// failures.
func (r *RecoveryEngine) RecoverAll(ctx context.Context, agentIDs []string) {
	for _, id := range agentIDs {
		_ = r.Recover(ctx, id)
	}
}

// attempt performs the minimal intervention: restart the process if it died,
// then move the instance back to idle with a conservative health reset.
func (r *RecoveryEngine) attempt(ctx context.Context, inst agent.Instance) error {
	proc := r.registry.Process(inst.ID)
	if proc == nil || !proc.Running() {
		if r.relaunch == nil {
			return fmt.Errorf("%w: process dead and no relaunch configured", domain.ErrRecoveryFailed)
		}
		newProc, err := r.relaunch(ctx, inst)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrRecoveryFailed, err)
		}
		r.registry.SetProcess(inst.ID, newProc)
		proc = newProc
	}

	now := r.now()
	return r.registry.Update(inst.ID, func(in *agent.Instance) error {
		if in.Status != agent.StatusUnhealthy {
			if !in.Status.CanTransition(agent.StatusUnhealthy) {
				return fmt.Errorf("%w: agent in status %s", domain.ErrRecoveryFailed, in.Status)
			}
			in.Status = agent.StatusUnhealthy
		}
		// The unhealthy -> idle edge is reserved for this engine.
		in.Status = agent.StatusIdle
		in.Health.Overall = r.cfg.ResetHealth
		in.Health.Issues = nil
		in.Health.Trend = agent.TrendImproving
		in.Health.CheckedAt = now
		if proc != nil {
			in.PID = proc.PID()
		}
		in.LastSeen = now
		return nil
	})
}

func (r *RecoveryEngine) publish(ctx context.Context, subject string, inst agent.Instance, reason string) {
	data, err := marshalPayload(eventbus.AgentEventPayload{
		AgentID:    inst.ID,
		TemplateID: inst.TemplateID,
		Type:       inst.Type,
		Reason:     reason,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish recovery event", "subject", subject, "error", err)
	}
}

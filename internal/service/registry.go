package service

import (
	"fmt"
	"sync"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/launcher"
)

// Registry is the authoritative in-memory record of all agent instances and
// their live process handles. Terminated instances are retained for metrics;
// process handles are released on termination.
//
// All access goes through the registry's methods so callers never share
// mutable Instance state. Reads return copies; mutation happens inside
// Update under the registry lock.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*agent.Instance
	procs     map[string]launcher.Process
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*agent.Instance),
		procs:     make(map[string]launcher.Process),
	}
}

// Add registers a new instance with its process handle.
func (r *Registry) Add(inst *agent.Instance, proc launcher.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.ID] = inst
	if proc != nil {
		r.procs[inst.ID] = proc
	}
}

// Reserve checks the global agent ceiling and registers the whole batch in
// one step under the write lock. Either every instance is added or none, so
// concurrent spawn batches cannot collectively breach maxAgents.
func (r *Registry) Reserve(insts []agent.Instance, maxAgents int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	running := 0
	for _, inst := range r.instances {
		if !inst.Status.Terminal() {
			running++
		}
	}
	if running+len(insts) > maxAgents {
		return fmt.Errorf("registry: spawn %d agents with %d running (max %d): %w",
			len(insts), running, maxAgents, domain.ErrAgentLimitExceeded)
	}
	for i := range insts {
		inst := insts[i]
		r.instances[inst.ID] = &inst
	}
	return nil
}

// Get returns a copy of the instance with the given ID.
func (r *Registry) Get(id string) (agent.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return agent.Instance{}, fmt.Errorf("registry: %s: %w", id, domain.ErrAgentNotFound)
	}
	return inst.Clone(), nil
}

// Process returns the live process handle for an instance, or nil if the
// instance has no process (already terminated, or never launched).
func (r *Registry) Process(id string) launcher.Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[id]
}

// SetProcess replaces the process handle for an instance, used when recovery
// relaunches a dead process.
func (r *Registry) SetProcess(id string, proc launcher.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; ok {
		r.procs[id] = proc
	}
}

// ReleaseProcess drops the process handle for an instance. Called once the
// process has exited and been accounted for.
func (r *Registry) ReleaseProcess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, id)
}

// Update applies fn to the instance under the registry lock. fn sees the live
// instance and may mutate it; an error from fn is returned unchanged.
func (r *Registry) Update(id string, fn func(*agent.Instance) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return fmt.Errorf("registry: %s: %w", id, domain.ErrAgentNotFound)
	}
	return fn(inst)
}

// Transition moves an instance to the next status, enforcing the state
// machine. Illegal edges return ErrInvalidTransition and leave the instance
// unchanged.
func (r *Registry) Transition(id string, next agent.Status) error {
	return r.Update(id, func(inst *agent.Instance) error {
		if !inst.Status.CanTransition(next) {
			return fmt.Errorf("registry: %s %s -> %s: %w", id, inst.Status, next, domain.ErrInvalidTransition)
		}
		inst.Status = next
		return nil
	})
}

// Remove deletes an instance and its process handle. Only legal for spawn
// failures before the instance ever served; terminated instances are retained
// instead.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
	delete(r.procs, id)
}

// Filter selects instances for List.
type Filter struct {
	Status agent.Status // zero value matches all
	Type   string       // empty matches all
}

// List returns copies of all instances matching the filter, in unspecified
// order.
func (r *Registry) List(f Filter) []agent.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if f.Status != "" && inst.Status != f.Status {
			continue
		}
		if f.Type != "" && inst.Type != f.Type {
			continue
		}
		out = append(out, inst.Clone())
	}
	return out
}

// CountByTemplate returns the number of non-terminal instances spawned from
// the given template.
func (r *Registry) CountByTemplate(templateID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range r.instances {
		if inst.TemplateID == templateID && !inst.Status.Terminal() {
			n++
		}
	}
	return n
}

// CountNonTerminal returns the number of instances that still count toward
// the global agent ceiling.
func (r *Registry) CountNonTerminal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range r.instances {
		if !inst.Status.Terminal() {
			n++
		}
	}
	return n
}

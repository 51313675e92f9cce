package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/metrics"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
	"github.com/Strob0t/AgentForge/internal/port/launcher"
)

// --- store ---

type mockStore struct {
	mu        sync.Mutex
	templates map[string]agent.Template
	snaps     []metrics.Snapshot
}

func newMockStore() *mockStore {
	return &mockStore{templates: make(map[string]agent.Template)}
}

func (m *mockStore) SaveTemplate(_ context.Context, t *agent.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = *t
	return nil
}

func (m *mockStore) GetTemplate(_ context.Context, id string) (*agent.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return &t, nil
}

func (m *mockStore) ListTemplates(_ context.Context) ([]agent.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockStore) RecordMetrics(_ context.Context, snap *metrics.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, *snap)
	return nil
}

func (m *mockStore) ListMetrics(_ context.Context, since time.Time, limit int) ([]metrics.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metrics.Snapshot
	for i := len(m.snaps) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.snaps[i].ComputedAt.Before(since) {
			out = append(out, m.snaps[i])
		}
	}
	return out, nil
}

// --- event bus ---

type published struct {
	Subject string
	Data    []byte
}

type mockBus struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]eventbus.Handler
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string]eventbus.Handler)}
}

func (m *mockBus) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{Subject: subject, Data: data})
	return nil
}

func (m *mockBus) Subscribe(_ context.Context, subject string, handler eventbus.Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = handler
	return func() {}, nil
}

func (m *mockBus) Drain() error      { return nil }
func (m *mockBus) Close() error      { return nil }
func (m *mockBus) IsConnected() bool { return true }

// emit delivers a payload to the registered handler, like a bus delivery.
func (m *mockBus) emit(subject string, payload any) error {
	m.mu.Lock()
	h := m.handlers[subject]
	m.mu.Unlock()
	if h == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h(context.Background(), subject, data)
}

// count returns how many events were published on a subject.
func (m *mockBus) count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.published {
		if p.Subject == subject {
			n++
		}
	}
	return n
}

// --- broadcaster ---

type hubEvent struct {
	Type    string
	Payload any
}

type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (m *mockHub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, hubEvent{Type: eventType, Payload: payload})
}

// --- launcher ---

// mockProcess is a controllable fake process.
type mockProcess struct {
	pid  int
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	exitErr error
	killed  bool
}

func newMockProcess(pid int) *mockProcess {
	return &mockProcess{pid: pid, done: make(chan struct{})}
}

func (p *mockProcess) PID() int { return p.pid }

func (p *mockProcess) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *mockProcess) Terminate() error {
	p.exit(nil)
	return nil
}

func (p *mockProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(nil)
	return nil
}

func (p *mockProcess) Done() <-chan struct{} { return p.done }

func (p *mockProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// exit simulates process exit with the given error.
func (p *mockProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	})
}

// mockLauncher fabricates processes. When bus is set, every launch emits the
// agent's first heartbeat so spawns become ready immediately.
type mockLauncher struct {
	mu       sync.Mutex
	launched []launcher.Spec
	procs    []*mockProcess
	failWith error
	bus      *mockBus
}

func (m *mockLauncher) Launch(_ context.Context, spec launcher.Spec) (launcher.Process, error) {
	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return nil, err
	}
	m.launched = append(m.launched, spec)
	p := newMockProcess(1000 + len(m.launched))
	m.procs = append(m.procs, p)
	bus := m.bus
	m.mu.Unlock()

	if bus != nil {
		go func() {
			_ = bus.emit(eventbus.SubjectAgentHeartbeat, eventbus.HeartbeatPayload{
				AgentID: spec.Env["AGENT_ID"],
				Status:  "idle",
			})
		}()
	}
	return p, nil
}

func (m *mockLauncher) launchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.launched)
}

func (m *mockLauncher) lastProc() *mockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.procs) == 0 {
		return nil
	}
	return m.procs[len(m.procs)-1]
}

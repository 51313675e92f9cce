package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/metrics"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Templates ---

// SaveTemplate persists a registered template. Templates are immutable, so a
// conflicting ID is overwritten only to tolerate re-registration on restart.
func (s *Store) SaveTemplate(ctx context.Context, t *agent.Template) error {
	args, err := json.Marshal(t.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	env, err := json.Marshal(t.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	caps, err := json.Marshal(t.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	resources, err := json.Marshal(t.Resources)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}
	healthCheck, err := json.Marshal(t.HealthCheck)
	if err != nil {
		return fmt.Errorf("marshal health_check: %w", err)
	}
	scaling, err := json.Marshal(t.Scaling)
	if err != nil {
		return fmt.Errorf("marshal scaling: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (id, name, type, executable, args, env, capabilities, resources, health_check, scaling, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Name, t.Type, t.Executable, args, env, caps, resources, healthCheck, scaling, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// GetTemplate returns one template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*agent.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, type, executable, args, env, capabilities, resources, health_check, scaling, created_at
		 FROM templates WHERE id = $1`, id)

	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get template %s: %w", id, domain.ErrTemplateNotFound)
		}
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &t, nil
}

// ListTemplates returns all registered templates.
func (s *Store) ListTemplates(ctx context.Context) ([]agent.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, executable, args, env, capabilities, resources, health_check, scaling, created_at
		 FROM templates ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []agent.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// --- Metrics history ---

// RecordMetrics appends one lifecycle metrics snapshot to the history.
func (s *Store) RecordMetrics(ctx context.Context, snap *metrics.Snapshot) error {
	byStatus, err := json.Marshal(snap.ByStatus)
	if err != nil {
		return fmt.Errorf("marshal by_status: %w", err)
	}
	byType, err := json.Marshal(snap.ByType)
	if err != nil {
		return fmt.Errorf("marshal by_type: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lifecycle_metrics
		 (total_agents, by_status, by_type, spawn_rate, termination_rate, avg_lifetime_seconds, avg_health, utilization, failure_rate, recovery_rate, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		snap.TotalAgents, byStatus, byType, snap.SpawnRate, snap.TerminationRate,
		snap.AvgLifetimeSeconds, snap.AvgHealth, snap.Utilization, snap.FailureRate,
		snap.RecoveryRate, snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("record metrics: %w", err)
	}
	return nil
}

// ListMetrics returns up to limit snapshots taken at or after since, newest first.
func (s *Store) ListMetrics(ctx context.Context, since time.Time, limit int) ([]metrics.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT total_agents, by_status, by_type, spawn_rate, termination_rate, avg_lifetime_seconds, avg_health, utilization, failure_rate, recovery_rate, computed_at
		 FROM lifecycle_metrics WHERE computed_at >= $1 ORDER BY computed_at DESC LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var snaps []metrics.Snapshot
	for rows.Next() {
		var (
			snap     metrics.Snapshot
			byStatus []byte
			byType   []byte
		)
		if err := rows.Scan(&snap.TotalAgents, &byStatus, &byType, &snap.SpawnRate,
			&snap.TerminationRate, &snap.AvgLifetimeSeconds, &snap.AvgHealth,
			&snap.Utilization, &snap.FailureRate, &snap.RecoveryRate, &snap.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		if err := json.Unmarshal(byStatus, &snap.ByStatus); err != nil {
			return nil, fmt.Errorf("unmarshal by_status: %w", err)
		}
		if err := json.Unmarshal(byType, &snap.ByType); err != nil {
			return nil, fmt.Errorf("unmarshal by_type: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// scanTemplate reads one template row.
func scanTemplate(row pgx.Row) (agent.Template, error) {
	var (
		t           agent.Template
		args        []byte
		env         []byte
		caps        []byte
		resources   []byte
		healthCheck []byte
		scaling     []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Executable, &args, &env, &caps,
		&resources, &healthCheck, &scaling, &t.CreatedAt); err != nil {
		return t, err
	}
	for _, pair := range []struct {
		data []byte
		dst  any
	}{
		{args, &t.Args},
		{env, &t.Env},
		{caps, &t.Capabilities},
		{resources, &t.Resources},
		{healthCheck, &t.HealthCheck},
		{scaling, &t.Scaling},
	} {
		if err := json.Unmarshal(pair.data, pair.dst); err != nil {
			return t, fmt.Errorf("unmarshal template field: %w", err)
		}
	}
	return t, nil
}

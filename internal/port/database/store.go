// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/metrics"
)

// Store is the port interface for persistence. Templates survive restarts;
// metrics snapshots build the history behind rate computations and the
// history API. The live agent registry is deliberately not persisted; it is
// authoritative only for the lifetime of the process owning it.
type Store interface {
	// Templates
	SaveTemplate(ctx context.Context, t *agent.Template) error
	GetTemplate(ctx context.Context, id string) (*agent.Template, error)
	ListTemplates(ctx context.Context) ([]agent.Template, error)

	// Metrics history
	RecordMetrics(ctx context.Context, snap *metrics.Snapshot) error
	ListMetrics(ctx context.Context, since time.Time, limit int) ([]metrics.Snapshot, error)
}

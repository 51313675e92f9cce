package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentForge/internal/adapter/postgres"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/metrics"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func testTemplate() *agent.Template {
	return &agent.Template{
		ID:           uuid.New().String(),
		Name:         "integration-test-template",
		Type:         "worker",
		Executable:   "sleep",
		Args:         []string{"60"},
		Env:          map[string]string{"MODE": "test"},
		Capabilities: []string{"compute", "summarize"},
		Resources: agent.ResourceRequirements{
			CPU:      0.5,
			MemoryMB: 256,
			Priority: 5,
		},
		HealthCheck: agent.HealthCheckConfig{
			Interval:           30 * time.Second,
			Timeout:            5 * time.Second,
			Retries:            3,
			HealthyThreshold:   2,
			UnhealthyThreshold: 3,
		},
		Scaling: agent.ScalingConfig{
			Enabled:            true,
			MinInstances:       1,
			MaxInstances:       5,
			TargetUtilization:  0.7,
			ScaleUpThreshold:   0.8,
			ScaleDownThreshold: 0.3,
			Cooldown:           time.Minute,
			Strategy:           "reactive",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStore_Templates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tpl := testTemplate()
	if err := store.SaveTemplate(ctx, tpl); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := store.GetTemplate(ctx, tpl.ID)
		if err != nil {
			t.Fatalf("GetTemplate: %v", err)
		}
		if got.Name != tpl.Name {
			t.Fatalf("expected name %q, got %q", tpl.Name, got.Name)
		}
		if got.Env["MODE"] != "test" {
			t.Fatalf("expected env MODE=test, got %v", got.Env)
		}
		if got.Scaling.MaxInstances != 5 {
			t.Fatalf("expected max instances 5, got %d", got.Scaling.MaxInstances)
		}
		if got.HealthCheck.Interval != 30*time.Second {
			t.Fatalf("expected health interval 30s, got %s", got.HealthCheck.Interval)
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.GetTemplate(ctx, uuid.New().String())
		if !errors.Is(err, domain.ErrTemplateNotFound) {
			t.Fatalf("expected ErrTemplateNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		templates, err := store.ListTemplates(ctx)
		if err != nil {
			t.Fatalf("ListTemplates: %v", err)
		}
		found := false
		for _, tm := range templates {
			if tm.ID == tpl.ID {
				found = true
				break
			}
		}
		if !found {
			t.Fatal("ListTemplates did not return the saved template")
		}
	})

	// Re-registering the same ID must not fail (restart tolerance).
	t.Run("Save_Idempotent", func(t *testing.T) {
		if err := store.SaveTemplate(ctx, tpl); err != nil {
			t.Fatalf("SaveTemplate repeat: %v", err)
		}
	})
}

func TestStore_MetricsHistory(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		snap := &metrics.Snapshot{
			TotalAgents: 10 + i,
			ByStatus:    map[agent.Status]int{agent.StatusIdle: 5, agent.StatusActive: 5 + i},
			ByType:      map[string]int{"worker": 10 + i},
			SpawnRate:   1.5,
			AvgHealth:   0.9,
			Utilization: 0.5,
			ComputedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordMetrics(ctx, snap); err != nil {
			t.Fatalf("RecordMetrics: %v", err)
		}
	}

	snaps, err := store.ListMetrics(ctx, base, 10)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(snaps) < 3 {
		t.Fatalf("expected at least 3 snapshots, got %d", len(snaps))
	}
	// Newest first.
	if snaps[0].ComputedAt.Before(snaps[1].ComputedAt) {
		t.Fatal("expected snapshots ordered newest first")
	}
	if snaps[0].ByStatus[agent.StatusIdle] != 5 {
		t.Fatalf("expected 5 idle agents in snapshot, got %d", snaps[0].ByStatus[agent.StatusIdle])
	}

	t.Run("Limit", func(t *testing.T) {
		limited, err := store.ListMetrics(ctx, base, 2)
		if err != nil {
			t.Fatalf("ListMetrics with limit: %v", err)
		}
		if len(limited) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(limited))
		}
	})
}

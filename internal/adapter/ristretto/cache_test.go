package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/adapter/ristretto"
	"github.com/Strob0t/AgentForge/internal/port/cache"
)

var _ cache.Cache = (*ristretto.Cache)(nil)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "ranking", []byte(`[{"agent_id":"a1"}]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Wait()

	val, found, err := c.Get(ctx, "ranking")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected hit after Set")
	}
	if string(val) != `[{"agent_id":"a1"}]` {
		t.Fatalf("unexpected value: %s", val)
	}
}

func TestCache_Miss(t *testing.T) {
	c := newCache(t)

	_, found, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected miss for unknown key")
	}
}

func TestCache_Delete(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Wait()

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c.Wait()

	_, found, _ := c.Get(ctx, "k")
	if found {
		t.Fatal("expected miss after Delete")
	}
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/database"
)

// TemplateCatalog keeps registered templates in memory, persisted through the
// store so they survive restarts. Templates are immutable after registration.
type TemplateCatalog struct {
	store database.Store

	mu        sync.RWMutex
	templates map[string]agent.Template
}

// NewTemplateCatalog creates a catalog backed by the given store.
func NewTemplateCatalog(store database.Store) *TemplateCatalog {
	return &TemplateCatalog{
		store:     store,
		templates: make(map[string]agent.Template),
	}
}

// Load populates the catalog from the store. Called once on startup.
func (c *TemplateCatalog) Load(ctx context.Context) error {
	templates, err := c.store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range templates {
		c.templates[t.ID] = t
	}
	return nil
}

// Register validates and persists a new template, assigning its ID.
func (c *TemplateCatalog) Register(ctx context.Context, t *agent.Template) (*agent.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate template: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := c.store.SaveTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	c.mu.Lock()
	c.templates[t.ID] = *t
	c.mu.Unlock()

	return t, nil
}

// Get returns a template by ID.
func (c *TemplateCatalog) Get(id string) (agent.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return agent.Template{}, fmt.Errorf("catalog: %s: %w", id, domain.ErrTemplateNotFound)
	}
	return t, nil
}

// List returns all registered templates.
func (c *TemplateCatalog) List() []agent.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]agent.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	return out
}

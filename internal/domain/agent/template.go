// Package agent defines the agent template and instance domain entities.
package agent

import (
	"errors"
	"time"
)

// ResourceRequirements declares the resources an agent of this type needs.
type ResourceRequirements struct {
	CPU      float64 `json:"cpu" yaml:"cpu"`           // fraction of one core, 1.0 = full core
	MemoryMB int     `json:"memory_mb" yaml:"memory_mb"`
	Network  bool    `json:"network" yaml:"network"`
	DiskMB   int     `json:"disk_mb" yaml:"disk_mb"`
	Priority int     `json:"priority" yaml:"priority"` // higher is more important
}

// HealthCheckConfig controls periodic health checking for agents of a type.
type HealthCheckConfig struct {
	Interval           time.Duration `json:"interval" yaml:"interval"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	Retries            int           `json:"retries" yaml:"retries"`
	HealthyThreshold   float64       `json:"healthy_threshold" yaml:"healthy_threshold"`
	UnhealthyThreshold float64       `json:"unhealthy_threshold" yaml:"unhealthy_threshold"`
}

// ScalingConfig controls auto-scaling for agents of a type.
type ScalingConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	MinInstances      int           `json:"min_instances" yaml:"min_instances"`
	MaxInstances      int           `json:"max_instances" yaml:"max_instances"`
	TargetUtilization float64       `json:"target_utilization" yaml:"target_utilization"`
	ScaleUpThreshold  float64       `json:"scale_up_threshold" yaml:"scale_up_threshold"`
	ScaleDownThreshold float64      `json:"scale_down_threshold" yaml:"scale_down_threshold"`
	Cooldown          time.Duration `json:"cooldown" yaml:"cooldown"`
	Strategy          string        `json:"strategy" yaml:"strategy"` // "reactive" | "predictive"
}

// Template is the immutable blueprint agents are spawned from.
// Templates are registered once and never mutated; instances reference their
// template by ID.
type Template struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Type         string               `json:"type"`
	Executable   string               `json:"executable"`
	Args         []string             `json:"args,omitempty"`
	Env          map[string]string    `json:"env,omitempty"`
	Capabilities []string             `json:"capabilities,omitempty"`
	Resources    ResourceRequirements `json:"resources"`
	HealthCheck  HealthCheckConfig    `json:"health_check"`
	Scaling      ScalingConfig        `json:"scaling"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Validate checks that the template carries everything needed to spawn.
func (t *Template) Validate() error {
	if t.Name == "" {
		return errors.New("template name is required")
	}
	if t.Type == "" {
		return errors.New("template type is required")
	}
	if t.Executable == "" {
		return errors.New("template executable is required")
	}
	if t.Scaling.MinInstances < 0 {
		return errors.New("min_instances must not be negative")
	}
	if t.Scaling.MaxInstances > 0 && t.Scaling.MaxInstances < t.Scaling.MinInstances {
		return errors.New("max_instances must be >= min_instances")
	}
	return nil
}

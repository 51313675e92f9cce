package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTFORGE_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "AGENTFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTFORGE_LOG_ASYNC")

	setInt64(&cfg.Cache.MaxSizeMB, "AGENTFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "AGENTFORGE_CACHE_TTL")

	setBool(&cfg.Otel.Enabled, "AGENTFORGE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "AGENTFORGE_OTEL_ENDPOINT")

	setInt(&cfg.Lifecycle.MaxAgents, "AGENTFORGE_MAX_AGENTS")
	setInt(&cfg.Lifecycle.MaxConcurrentSpawns, "AGENTFORGE_MAX_CONCURRENT_SPAWNS")
	setDuration(&cfg.Lifecycle.SpawnTimeout, "AGENTFORGE_SPAWN_TIMEOUT")
	setDuration(&cfg.Lifecycle.ShutdownTimeout, "AGENTFORGE_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.Lifecycle.ProcessingInterval, "AGENTFORGE_PROCESSING_INTERVAL")
	setDuration(&cfg.Lifecycle.HealthCheckInterval, "AGENTFORGE_HEALTH_CHECK_INTERVAL")
	setDuration(&cfg.Lifecycle.ScalingInterval, "AGENTFORGE_SCALING_INTERVAL")
	setFloat64(&cfg.Lifecycle.CriticalHealth, "AGENTFORGE_CRITICAL_HEALTH")
	setDuration(&cfg.Lifecycle.PressureCooldown, "AGENTFORGE_PRESSURE_COOLDOWN")

	setInt(&cfg.Recovery.MaxAttempts, "AGENTFORGE_RECOVERY_MAX_ATTEMPTS")
	setDuration(&cfg.Recovery.Quarantine, "AGENTFORGE_RECOVERY_QUARANTINE")
	setFloat64(&cfg.Recovery.ResetHealth, "AGENTFORGE_RECOVERY_RESET_HEALTH")
}

// validate rejects configurations the orchestrator cannot run with.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if cfg.Lifecycle.MaxAgents < 1 {
		return errors.New("lifecycle.max_agents must be >= 1")
	}
	if cfg.Lifecycle.MaxConcurrentSpawns < 1 {
		return errors.New("lifecycle.max_concurrent_spawns must be >= 1")
	}
	if cfg.Lifecycle.SpawnTimeout <= 0 {
		return errors.New("lifecycle.spawn_timeout must be positive")
	}
	if cfg.Lifecycle.ShutdownTimeout <= 0 {
		return errors.New("lifecycle.shutdown_timeout must be positive")
	}
	if cfg.Lifecycle.CriticalHealth < 0 || cfg.Lifecycle.CriticalHealth > 1 {
		return errors.New("lifecycle.critical_health must be in [0,1]")
	}
	if cfg.Recovery.MaxAttempts < 1 {
		return errors.New("recovery.max_attempts must be >= 1")
	}
	if cfg.Recovery.ResetHealth <= 0 || cfg.Recovery.ResetHealth >= 1 {
		return errors.New("recovery.reset_health must be in (0,1)")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Package config loads the core's ambient settings (database DSN, scheduler
// worker tunables, logger verbosity) from defaults, environment variables
// and optional programmatic overrides, in that precedence order.
package config

import (
	"time"

	"github.com/opensyte/workflow-core/pkg/logger"
)

// Database groups the persistence connection settings.
type Database struct {
	DSN          string `koanf:"dsn"`
	MaxConns     int    `koanf:"max_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// WorkerConfig groups the scheduler worker's tunables (spec §6, §4.3).
type WorkerConfig struct {
	PollIntervalMS        int `koanf:"poll_interval_ms"`
	BatchSize             int `koanf:"batch_size"`
	MaxConcurrentExecs    int `koanf:"max_concurrent_executions"`
	RetryAttempts         int `koanf:"retry_attempts"`
	RetryDelayMS          int `koanf:"retry_delay_ms"`
}

func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

func (w WorkerConfig) RetryDelay() time.Duration {
	return time.Duration(w.RetryDelayMS) * time.Millisecond
}

// LoggerConfig mirrors pkg/logger.Config in a serializable shape.
type LoggerConfig struct {
	Level logger.LogLevel `koanf:"level"`
	JSON  bool             `koanf:"json"`
}

// Config is the fully resolved, immutable configuration snapshot for one
// process lifetime (the scheduler worker, or an embedding service).
type Config struct {
	Database Database     `koanf:"database"`
	Worker   WorkerConfig `koanf:"worker"`
	Logger   LoggerConfig `koanf:"logger"`

	// EngineVisitCap is the per-node visit cap setting (default 50). The
	// execution engine does not read it; it applies the constant
	// execution.MaxNodeVisits (also 50).
	EngineVisitCap int `koanf:"engine_visit_cap"`
	// DefaultNodeTimeout is the default node timeout setting (default
	// 300s). The execution engine does not read it; workflow.Node's
	// EffectiveTimeout falls back to a fixed 300s.
	DefaultNodeTimeout time.Duration `koanf:"default_node_timeout"`
}

// Default returns the built-in defaults named throughout spec §6/§4.2.
func Default() *Config {
	return &Config{
		Database: Database{
			DSN:          "postgres://localhost:5432/workflow_core?sslmode=disable",
			MaxConns:     10,
			QueryTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			PollIntervalMS:     60_000,
			BatchSize:          25,
			MaxConcurrentExecs: 5,
			RetryAttempts:      3,
			RetryDelayMS:       5_000,
		},
		Logger: LoggerConfig{
			Level: logger.InfoLevel,
			JSON:  false,
		},
		EngineVisitCap:     50,
		DefaultNodeTimeout: 300 * time.Second,
	}
}

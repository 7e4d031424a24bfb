package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every environment variable recognized by this
// package must carry, e.g. WFC_WORKER_POLL_INTERVAL_MS.
const EnvPrefix = "WFC_"

// Load builds a Config from the built-in defaults overlaid with any
// WFC_-prefixed environment variables, overlaid with overrides (may be nil).
func Load(overrides *Config) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(*Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}
	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return envKeyToPath(k), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}
	if overrides != nil {
		if err := k.Load(structs.Provider(*overrides, "koanf"), nil); err != nil {
			return nil, fmt.Errorf("loading config overrides: %w", err)
		}
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// envKeyToPath converts WFC_WORKER_POLL_INTERVAL_MS into
// worker.poll_interval_ms, matching the koanf struct tags above.
func envKeyToPath(envKey string) string {
	trimmed := envKey
	if len(trimmed) > len(EnvPrefix) {
		trimmed = trimmed[len(EnvPrefix):]
	}
	known := map[string]string{
		"DATABASE_DSN":                     "database.dsn",
		"DATABASE_MAX_CONNS":               "database.max_conns",
		"WORKER_POLL_INTERVAL_MS":          "worker.poll_interval_ms",
		"WORKER_BATCH_SIZE":                "worker.batch_size",
		"WORKER_MAX_CONCURRENT_EXECUTIONS": "worker.max_concurrent_executions",
		"WORKER_RETRY_ATTEMPTS":            "worker.retry_attempts",
		"WORKER_RETRY_DELAY_MS":            "worker.retry_delay_ms",
		"LOGGER_LEVEL":                     "logger.level",
		"LOGGER_JSON":                      "logger.json",
	}
	if path, ok := known[trimmed]; ok {
		return path
	}
	return trimmed
}

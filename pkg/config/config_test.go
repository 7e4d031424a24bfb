package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Run("Should load built-in defaults with no overrides or env", func(t *testing.T) {
		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 60_000, cfg.Worker.PollIntervalMS)
		assert.Equal(t, 25, cfg.Worker.BatchSize)
		assert.Equal(t, 5, cfg.Worker.MaxConcurrentExecs)
		assert.Equal(t, 3, cfg.Worker.RetryAttempts)
		assert.Equal(t, 5_000, cfg.Worker.RetryDelayMS)
		assert.Equal(t, 50, cfg.EngineVisitCap)
	})

	t.Run("Should apply programmatic overrides over defaults", func(t *testing.T) {
		cfg, err := Load(&Config{Worker: WorkerConfig{BatchSize: 100}})
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Worker.BatchSize)
	})

	t.Run("Should apply environment variables over defaults", func(t *testing.T) {
		t.Setenv("WFC_WORKER_BATCH_SIZE", "42")
		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Worker.BatchSize)
	})
}

func TestGlobalConfig(t *testing.T) {
	t.Run("Should panic when accessing uninitialized config", func(t *testing.T) {
		resetForTest()
		assert.Panics(t, func() { Get() })
		assert.Panics(t, func() { OnChange(func(*Config) {}) })
	})

	t.Run("Should initialize global config successfully", func(t *testing.T) {
		resetForTest()
		err := Initialize(nil)
		require.NoError(t, err)
		cfg := Get()
		assert.NotNil(t, cfg)
		assert.Equal(t, 60_000, cfg.Worker.PollIntervalMS)
	})

	t.Run("Should only initialize once", func(t *testing.T) {
		resetForTest()
		require.NoError(t, Initialize(nil))
		cfg1 := Get()
		require.NoError(t, Initialize(&Config{Worker: WorkerConfig{BatchSize: 999}}))
		cfg2 := Get()
		assert.Equal(t, cfg1.Worker.BatchSize, cfg2.Worker.BatchSize)
	})

	t.Run("Should notify OnChange callbacks on Reload", func(t *testing.T) {
		resetForTest()
		require.NoError(t, Initialize(nil))
		var seen int
		OnChange(func(cfg *Config) { seen = cfg.Worker.BatchSize })
		require.NoError(t, Reload(&Config{Worker: WorkerConfig{BatchSize: 7}}))
		assert.Equal(t, 7, seen)
	})
}

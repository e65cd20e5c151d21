package core

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 3600*time.Second, cfg.CacheDefaultTTL)
	assert.Equal(t, "pulse_cache.db", cfg.CacheDBPath)
	assert.False(t, cfg.Simulate)
}

func TestNewConfig_OptionsOverrideDefaults(t *testing.T) {
	cfg, err := NewConfig(
		WithCacheDBPath("/tmp/other.db"),
		WithCacheDefaultTTL(10*time.Second),
		WithOfflineMode(true),
	)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.CacheDBPath)
	assert.Equal(t, 10*time.Second, cfg.CacheDefaultTTL)
	assert.True(t, cfg.OfflineMode)
}

func TestNewConfig_RejectsNonPositiveTTL(t *testing.T) {
	_, err := NewConfig(WithCacheDefaultTTL(0))
	require.Error(t, err)
}

func TestProductionLogger_WithComponent(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Format: "text", Output: "stdout"}, DevelopmentConfig{}, "pulse")
	scoped := logger.WithComponent("pulse/cache")
	assert.NotNil(t, scoped)
	scoped.Info("test", map[string]interface{}{"k": "v"})
}

func TestNewConfig_ReadsOptionalTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/pulse.toml"
	require.NoError(t, os.WriteFile(path, []byte(`
cache_db_path = "/tmp/from-toml.db"
observability_enabled = true
`), 0o644))
	t.Setenv("PULSE_CONFIG_FILE", path)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-toml.db", cfg.CacheDBPath)
	assert.True(t, cfg.ObservabilityEnabled)
}

func TestNewConfig_MissingTOMLFileIsNotAnError(t *testing.T) {
	t.Setenv("PULSE_CONFIG_FILE", "/nonexistent/pulse.toml")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "pulse_cache.db", cfg.CacheDBPath)
}

func TestNewConfig_DefaultTelemetryIsNoOp(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	_, ok := cfg.Telemetry().(*NoOpTelemetry)
	assert.True(t, ok)
}

func TestNewConfig_ObservabilityEnabledWiresOTelTelemetry(t *testing.T) {
	cfg, err := NewConfig(WithObservability(true))
	require.NoError(t, err)
	_, ok := cfg.Telemetry().(*OTelTelemetry)
	assert.True(t, ok)
}

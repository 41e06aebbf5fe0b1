package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())
	assert.Empty(t, cfg.PostgresDSN)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("TICK_INTERVAL_MS", "100")
	t.Setenv("PRETTY_LOG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
	assert.True(t, cfg.PrettyLog)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "-5")
	_, err := Load()
	assert.Error(t, err)
}

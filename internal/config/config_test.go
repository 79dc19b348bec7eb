package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "POSTGRES_HOST", "CACHE_TTL", "QUALITY_MIN_COMPLETION", "LOG_LEVEL", "AUDIT_ENABLED", "GATEWAY_SECRET"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "localhost", cfg.PostgresHost)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 0.8, cfg.Quality.MinimumCompletion)
	assert.Equal(t, 0.05, cfg.Quality.WarningTolerance)
	assert.Empty(t, cfg.GatewaySecret)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("AUDIT_ENABLED", "false")
	t.Setenv("QUALITY_MIN_COMPLETION", "0.9")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.AppPort)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, 0.9, cfg.Quality.MinimumCompletion)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "s3cret", cfg.GatewaySecret)
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
	assert.Contains(t, cfg.PostgresDSN(), "host=db port=6543")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"APP_PORT":               "eighty",
		"CACHE_TTL":              "soon",
		"AUDIT_ENABLED":          "maybe",
		"QUALITY_MIN_COMPLETION": "1.5",
		"LOG_LEVEL":              "chatty",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.ErrorContains(t, err, key)
		})
	}
}

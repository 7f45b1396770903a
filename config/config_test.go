package config

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DB_DSN", "LOG_LEVEL", "REDIS_ADDRESS",
		"SWEEP_ENABLED", "SWEEP_INTERVAL_MINUTES", "ALLOWED_ORIGINS", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "reservations.db", cfg.DBDSN)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.True(t, cfg.SweepEnabled)
	assert.Empty(t, cfg.RedisAddress)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "host=db user=app dbname=sales")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("SWEEP_INTERVAL_MINUTES", "15")
	t.Setenv("ALLOWED_ORIGINS", " https://sales.example.com , ,https://admin.example.com")
	t.Setenv("REDIS_ADDRESS", "redis:6379")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, []string{"https://sales.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis:6379", cfg.RedisAddress)
}

func TestLoad_RejectsBadSettings(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "oracle")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_DRIVER")
	})
	t.Run("interval", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "")
		t.Setenv("SWEEP_INTERVAL_MINUTES", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "SWEEP_INTERVAL_MINUTES")
	})
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "twelve")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 3, intFromEnv("X_INT", 3))
	assert.True(t, boolFromEnv("X_BOOL", true))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json")

	log.Info("hidden")
	log.WithField("unit_id", 12).Warn("shown")

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"unit_id":12`)

	assert.Equal(t, logrus.InfoLevel, newLogger(&buf, "loud", "text").GetLevel())
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "info", "json")

	LogError(log, "sales", "Cancel", errors.New("boom"))

	assert.Contains(t, buf.String(), `"module":"sales"`)
	assert.Contains(t, buf.String(), `"msg":"boom"`)
}

func TestConnectRedis_EmptyAddressDisables(t *testing.T) {
	rdb, err := ConnectRedis(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, rdb)
}

/*
config.go - Process configuration from the environment

PURPOSE:
  Collects every setting the server needs into one Config value. Values
  come from the environment, optionally seeded from a .env file, with
  defaults suitable for a local SQLite run. Command-line flags in
  cmd/server override the few settings operators change most.

VARIABLES:
  PORT                           HTTP port (8080)
  DB_DRIVER                      sqlite | postgres | mysql | memory (sqlite)
  DB_DSN                         DSN or SQLite path (reservations.db)
  DB_MAX_OPEN_CONNS              Pool size (20)
  DB_MAX_IDLE_CONNS              Idle pool size (10)
  DB_CONN_MAX_LIFETIME_SECONDS   Connection lifetime (300)
  LOG_LEVEL                      logrus level (info)
  LOG_FORMAT                     json | text (json)
  REDIS_ADDRESS                  Sweep lock backend; empty disables the lock
  SWEEP_ENABLED                  Run the background sweeps (true)
  SWEEP_INTERVAL_MINUTES         Sweep interval (60)
  ALLOWED_ORIGINS                Comma-separated CORS origins
  OTEL_EXPORTER_OTLP_ENDPOINT    Trace collector host:port; empty disables tracing
  SERVICE_NAME                   Trace resource name (reservation-engine)

SEE ALSO:
  - logrus.go: Logger construction
  - cmd/server/main.go: Flag overrides
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port int

	DBDriver        string
	DBDSN           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	LogLevel  string
	LogFormat string

	RedisAddress  string
	SweepEnabled  bool
	SweepInterval time.Duration

	AllowedOrigins []string

	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            intFromEnv("PORT", 8080),
		DBDriver:        stringFromEnv("DB_DRIVER", "sqlite"),
		DBDSN:           stringFromEnv("DB_DSN", "reservations.db"),
		MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		LogLevel:        stringFromEnv("LOG_LEVEL", "info"),
		LogFormat:       stringFromEnv("LOG_FORMAT", "json"),
		RedisAddress:    strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		SweepEnabled:    boolFromEnv("SWEEP_ENABLED", true),
		SweepInterval:   time.Duration(intFromEnv("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
		AllowedOrigins:  listFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		OTLPEndpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:     stringFromEnv("SERVICE_NAME", "reservation-engine"),
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: SWEEP_INTERVAL_MINUTES must be positive")
	}
	return nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func listFromEnv(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-level configuration. Lending policy lives in the
// sys_config table, not here; these knobs only shape the process around it.
type Config struct {
	DBSource      string
	DBMaxConns    int32
	Port          string
	Env           string
	ShutdownGrace time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	maxConns, err := intEnv("DB_MAX_CONNS", 0)
	if err != nil {
		return nil, err
	}

	grace, err := durationEnv("SHUTDOWN_GRACE", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:      dbSource,
		DBMaxConns:    int32(maxConns),
		Port:          stringEnv("SERVER_PORT", "8080"),
		Env:           stringEnv("ENVIRONMENT", "development"),
		ShutdownGrace: grace,
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// intEnv parses key as a non-negative integer; zero means "driver default".
func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, raw)
	}
	return d, nil
}

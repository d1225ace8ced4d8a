package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "DB_DRIVER", "DB_DSN", "DEFAULT_USER_ID", "SHUTDOWN_TIMEOUT", "RATE_LIMIT", "SEED_DEMO_DATA", "LOG_LEVEL", "LOG_FORMAT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "3000" || cfg.Addr() != ":3000" {
		t.Errorf("Expected port 3000, got %q (%q)", cfg.Port, cfg.Addr())
	}
	if cfg.DBDriver != DriverSQLite {
		t.Errorf("Expected sqlite driver, got %q", cfg.DBDriver)
	}
	if cfg.DefaultUserID != 1 {
		t.Errorf("Expected default user 1, got %d", cfg.DefaultUserID)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit != "100-S" {
		t.Errorf("Expected rate limit 100-S, got %q", cfg.RateLimit)
	}
	if !cfg.SeedDemoData {
		t.Error("Expected demo data seeding by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "host=localhost user=postgres dbname=commlink")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1m")
	t.Setenv("LOG_FORMAT", "json")
	unsetEnv(t, "LOG_LEVEL", "DEFAULT_USER_ID", "SHUTDOWN_TIMEOUT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8081" {
		t.Errorf("Expected port 8081, got %q", cfg.Port)
	}
	if cfg.DBDriver != DriverPostgres {
		t.Errorf("Expected postgres driver, got %q", cfg.DBDriver)
	}
	if cfg.DBConnMaxLifetime != time.Minute {
		t.Errorf("Expected 1m lifetime, got %s", cfg.DBConnMaxLifetime)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("Expected json log format, got %q", cfg.LogFormat)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Config{
		Port:            "3000",
		DBDriver:        "mysql",
		DBDSN:           "x",
		LogLevel:        "loud",
		LogFormat:       "text",
		DBMaxOpenConns:  10,
		ShutdownTimeout: time.Second,
		DefaultUserID:   1,
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"DB_DRIVER", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidateAcceptsGoodValues(t *testing.T) {
	cfg := Config{
		Port:            "3000",
		DBDriver:        DriverSQLite,
		DBDSN:           ":memory:",
		LogLevel:        "debug",
		LogFormat:       "json",
		DBMaxOpenConns:  1,
		ShutdownTimeout: time.Second,
		DefaultUserID:   1,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allVariables = []string{
	"TEAMHOURS_HTTP_ADDR",
	"TEAMHOURS_DATABASE_PATH",
	"TEAMHOURS_STORE",
	"TEAMHOURS_LOG_LEVEL",
	"TEAMHOURS_LOG_FORMAT",
	"TEAMHOURS_TOKEN_SECRET",
	"TEAMHOURS_TOKEN_ISSUER",
	"TEAMHOURS_AMQP_URL",
	"TEAMHOURS_AMQP_EXCHANGE",
	"TEAMHOURS_DEFAULT_TIMEZONE",
	"TEAMHOURS_SHUTDOWN_TIMEOUT",
	"TEAMHOURS_OTEL_ENABLED",
	"TEAMHOURS_OTEL_ENDPOINT",
}

// clearEnv unsets every variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allVariables {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		const secret = "super-secret"
		t.Setenv("TEAMHOURS_TOKEN_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPAddr != ":8080" {
			t.Fatalf("expected default address :8080, got %q", cfg.HTTPAddr)
		}
		if cfg.DatabasePath != "./var/teamhours.db" {
			t.Fatalf("unexpected default database path: %q", cfg.DatabasePath)
		}
		if cfg.Store != "sqlite" || cfg.LogFormat != "json" || cfg.LogLevel != "info" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.AMQPExchange != "teamhours.events" || cfg.AMQPURL != "" {
			t.Fatalf("unexpected AMQP defaults: %+v", cfg)
		}
		if cfg.ShutdownTimeout != 10*time.Second {
			t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC location, got %v", cfg.Location)
		}
		if cfg.TokenSecret != secret {
			t.Fatalf("expected token secret to be %q, got %q", secret, cfg.TokenSecret)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: TEAMHOURS_TOKEN_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEAMHOURS_TOKEN_SECRET", "secret")
		t.Setenv("TEAMHOURS_STORE", "postgres")
		t.Setenv("TEAMHOURS_LOG_FORMAT", "xml")
		t.Setenv("TEAMHOURS_DEFAULT_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		for _, key := range []string{"TEAMHOURS_STORE", "TEAMHOURS_LOG_FORMAT", "TEAMHOURS_DEFAULT_TIMEZONE"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})

	t.Run("rejects unparsable durations", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEAMHOURS_TOKEN_SECRET", "secret")
		t.Setenv("TEAMHOURS_SHUTDOWN_TIMEOUT", "soon")

		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid duration")
		}
	})

	t.Run("overrides defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TEAMHOURS_TOKEN_SECRET", "secret")
		t.Setenv("TEAMHOURS_HTTP_ADDR", "127.0.0.1:9000")
		t.Setenv("TEAMHOURS_STORE", "memory")
		t.Setenv("TEAMHOURS_DEFAULT_TIMEZONE", "Asia/Tokyo")
		t.Setenv("TEAMHOURS_OTEL_ENABLED", "true")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.Store != "memory" || !cfg.OTelEnabled {
			t.Fatalf("overrides not applied: %+v", cfg)
		}
		if cfg.Location.String() != "Asia/Tokyo" {
			t.Fatalf("expected Asia/Tokyo, got %v", cfg.Location)
		}
	})
}

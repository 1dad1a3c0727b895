package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Supported TEAMHOURS_STORE values.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config captures environment driven configuration values for the team hours service.
type Config struct {
	HTTPAddr        string        `env:"TEAMHOURS_HTTP_ADDR" envDefault:":8080"`
	DatabasePath    string        `env:"TEAMHOURS_DATABASE_PATH" envDefault:"./var/teamhours.db"`
	Store           string        `env:"TEAMHOURS_STORE" envDefault:"sqlite"`
	LogLevel        string        `env:"TEAMHOURS_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"TEAMHOURS_LOG_FORMAT" envDefault:"json"`
	TokenSecret     string        `env:"TEAMHOURS_TOKEN_SECRET"`
	TokenIssuer     string        `env:"TEAMHOURS_TOKEN_ISSUER"`
	AMQPURL         string        `env:"TEAMHOURS_AMQP_URL"`
	AMQPExchange    string        `env:"TEAMHOURS_AMQP_EXCHANGE" envDefault:"teamhours.events"`
	DefaultTimezone string        `env:"TEAMHOURS_DEFAULT_TIMEZONE" envDefault:"UTC"`
	ShutdownTimeout time.Duration `env:"TEAMHOURS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OTelEnabled     bool          `env:"TEAMHOURS_OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string        `env:"TEAMHOURS_OTEL_ENDPOINT"`

	// Location is DefaultTimezone resolved by Load.
	Location *time.Location `env:"-"`
}

// Load parses configuration values from the current process environment.
//
// Defaults are applied for optional fields. Every missing or invalid
// variable is reported in a single error.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		var aggregate env.AggregateError
		if errors.As(err, &aggregate) {
			names := make([]string, 0, len(aggregate.Errors))
			for _, e := range aggregate.Errors {
				names = append(names, e.Error())
			}
			return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(names, ", "))
		}
		return Config{}, fmt.Errorf("環境変数の値が不正です: %w", err)
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	cfg.TokenSecret = strings.TrimSpace(cfg.TokenSecret)
	if cfg.TokenSecret == "" {
		missing = append(missing, "TEAMHOURS_TOKEN_SECRET")
	}

	switch cfg.Store {
	case StoreSQLite, StoreMemory:
	default:
		invalid = append(invalid, "TEAMHOURS_STORE")
	}
	if cfg.Store == StoreSQLite && strings.TrimSpace(cfg.DatabasePath) == "" {
		invalid = append(invalid, "TEAMHOURS_DATABASE_PATH")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "TEAMHOURS_LOG_LEVEL")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, "TEAMHOURS_LOG_FORMAT")
	}

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		invalid = append(invalid, "TEAMHOURS_DEFAULT_TIMEZONE")
	}
	cfg.Location = loc

	if cfg.ShutdownTimeout <= 0 {
		invalid = append(invalid, "TEAMHOURS_SHUTDOWN_TIMEOUT")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

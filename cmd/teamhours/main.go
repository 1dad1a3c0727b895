package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/authz"
	"github.com/example/team-hours/internal/config"
	httptransport "github.com/example/team-hours/internal/http"
	"github.com/example/team-hours/internal/logging"
	"github.com/example/team-hours/internal/notify"
	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/persistence/memory"
	"github.com/example/team-hours/internal/persistence/sqlite"
	"github.com/example/team-hours/internal/persistence/sqlite/migration"
	"github.com/example/team-hours/internal/telemetry"
)

const serviceName = "teamhours"

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		bootstrap.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("team hours API listening", "addr", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// app holds the wired HTTP handler and everything that must be released on exit.
type app struct {
	handler http.Handler
	closers []func() error
	logger  *slog.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	store, health, err := openStore(ctx, cfg, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(cfg, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	verifier, err := authz.NewTokenVerifier([]byte(cfg.TokenSecret), cfg.TokenIssuer, time.Now)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configure token verifier: %w", err)
	}

	gate := authz.NewRoleGate(store)
	idGenerator := uuid.NewString
	now := time.Now

	attendance := application.NewAttendanceServiceWithLogger(store, gate, notifier, idGenerator, now, logger)
	members := application.NewMemberServiceWithLogger(store, gate, notifier, idGenerator, now, logger)
	teams := application.NewTeamServiceWithLogger(store, gate, idGenerator, now, logger)
	stats := application.NewStatsServiceWithLogger(store, gate, now, cfg.Location, logger)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Teams:      httptransport.NewTeamHandler(teams, logger),
		Members:    httptransport.NewMemberHandler(members, attendance, logger),
		Attendance: httptransport.NewAttendanceHandler(attendance, logger),
		Stats:      httptransport.NewStatsHandler(stats, logger),
		Health:     health,
		Auth:       httptransport.RequireBearer(verifier, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recoverer(logger),
			httptransport.RequestLogger(logger),
		},
		Logger: logger,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, a *app) (persistence.Store, httptransport.HealthChecker, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.DatabasePath), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		applied, err := store.Migrate(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("database ready", "path", cfg.DatabasePath, "migrations_applied", applied)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func newNotifier(cfg config.Config, logger *slog.Logger, a *app) (application.Notifier, error) {
	if cfg.AMQPURL == "" {
		return notify.NewLogNotifier(logger), nil
	}
	publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP broker: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)
	logger.Info("publishing change events", "exchange", cfg.AMQPExchange)
	return notify.NewAMQPNotifier(publisher, cfg.AMQPExchange, logger), nil
}

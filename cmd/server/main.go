/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll settlement server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yaml, .env, PAYROLL_* environment)
  2. Build the zap logger
  3. Open the store (memory, sqlite or postgres)
  4. Pick the record locker (Redis when enabled, in-process otherwise)
  5. Wire settlement, orchestrator, aggregator and metrics
  6. Start the draft scheduler and the HTTP server
  7. Graceful shutdown on SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config       Directory containing config.yaml (default: ".", "./config")
  -scenario     Seed a demo scenario at startup (memory/sqlite only)
  -issue-token  Print a bearer token for the given subject and exit
  -perms        Comma-separated permissions for -issue-token (default: payroll:*)

EXAMPLES:
  # Development with an in-memory store and demo data
  PAYROLL_DATABASE_DRIVER=memory PAYROLL_AUTH_DISABLED=true ./server -scenario=march-2024

  # Issue a read-only token
  ./server -issue-token=alice -perms=payroll:view

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/memory"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/redislock"
	"github.com/warp/payroll-engine/store/sqlite"
)

// backend is what every store implements.
type backend interface {
	payroll.SalaryStore
	payroll.DriverDirectory
	payroll.DeliverySource
	payroll.RunLog
	payroll.Seeder
}

func main() {
	configDir := flag.String("config", "", "directory containing config.yaml")
	scenario := flag.String("scenario", "", "demo scenario to seed at startup")
	issueFor := flag.String("issue-token", "", "print a bearer token for this subject and exit")
	perms := flag.String("perms", string(payroll.PermAll), "comma-separated permissions for -issue-token")
	flag.Parse()

	if err := run(*configDir, *scenario, *issueFor, *perms); err != nil {
		fmt.Fprintf(os.Stderr, "payroll-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir, scenario, issueFor, perms string) error {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tokens := api.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if issueFor != "" {
		tok, err := tokens.Issue(issueFor, strings.Split(perms, ","))
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, health, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("store ready", zap.String("driver", cfg.Database.Driver))

	// Locker
	var locker generic.Locker = generic.NewKeyedMutex()
	if cfg.Redis.Enabled {
		rl, client, err := redislock.Dial(ctx, redislock.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		}, log.Named("redislock"))
		if err != nil {
			return err
		}
		defer client.Close()
		locker = rl
		log.Info("redis locker enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Domain
	commission, err := cfg.Commission()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var recorder payroll.Recorder = payroll.NopRecorder{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus(cfg.Metrics.Namespace)
		recorder = prom
		metricsHandler = prom.Handler()
	}

	settlement := payroll.NewSettlement(store,
		payroll.WithLocker(locker),
		payroll.WithLogger(log.Named("settlement")),
		payroll.WithRecorder(recorder),
	)
	orchestrator := payroll.NewOrchestrator(store, store, payroll.NewCalculator(commission), settlement)
	orchestrator.RunLog = store
	orchestrator.Recorder = recorder
	orchestrator.Logger = log.Named("batch")
	orchestrator.Location = loc
	orchestrator.Workers = cfg.Payroll.Workers

	aggregator := payroll.NewAggregator(store)
	aggregator.Location = loc

	handler := api.NewHandler(orchestrator, aggregator)
	handler.Logger = log
	if cfg.Database.Driver != "postgres" {
		handler.Seeder = store
	}

	if scenario != "" {
		if handler.Seeder == nil {
			return fmt.Errorf("scenarios are not available with the %s store", cfg.Database.Driver)
		}
		dto, err := api.SeedScenario(ctx, handler.Seeder, scenario, loc)
		if err != nil {
			return err
		}
		log.Info("scenario seeded", zap.String("scenario", dto.ID), zap.Int("drivers", dto.Drivers))
	}

	// Scheduler
	if cfg.Scheduler.Enabled {
		sched := api.NewDraftScheduler(orchestrator, log)
		sched.CheckInterval = cfg.Scheduler.Interval
		sched.IncludePrevious = cfg.Scheduler.IncludePrevious
		sched.Start()
		defer sched.Stop()
	}

	// HTTP
	routerCfg := api.RouterConfig{
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
		Tokens:         tokens,
		Metrics:        metricsHandler,
		Health:         health,
		Logger:         log.Named("http"),
	}
	if cfg.Auth.Disabled {
		routerCfg.Tokens = nil
		log.Warn("authentication disabled, every request runs as the dev actor")
	}

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      api.NewRouter(handler, routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(context.Context) error, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.New(), nil, func() {}, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, s.Ping, func() { s.Close() }, nil
	default:
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, s.Ping, func() { s.Close() }, nil
	}
}

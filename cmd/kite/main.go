// Kite - Risk scoring and alert decisions for recurring charges.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kite/internal/alerting"
	"github.com/opensource-finance/kite/internal/api"
	"github.com/opensource-finance/kite/internal/bus"
	"github.com/opensource-finance/kite/internal/cache"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/llmscore"
	"github.com/opensource-finance/kite/internal/mlscore"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/scoring"
	"github.com/opensource-finance/kite/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KITE_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	applyEnvOverrides(cfg)

	setupLogger(cfg.Logging)

	// Log startup
	slog.Info("starting kite",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	if cfg.Tier == domain.TierPro {
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize the two score providers and the combining engine
	numeric := mlscore.New(cfg.Scoring)
	narrative := llmscore.New(cfg.Scoring)
	engine := scoring.NewEngine(numeric, narrative)
	slog.Info("scoring engine initialized",
		"backend_url", cfg.Scoring.BackendURL,
		"backend_model", cfg.Scoring.BackendModel,
	)

	// Initialize History Service
	historySvc := history.NewService(repo, cacheImpl, cfg.Scoring.HistoryLimit)
	slog.Info("history service initialized", "limit", cfg.Scoring.HistoryLimit)

	// Initialize Batch Processor
	processor := alerting.NewProcessor(repo, cacheImpl, busImpl, engine, historySvc, cfg.Scoring.Workers, cfg.Cache.UserTTL)
	slog.Info("batch processor initialized", "workers", cfg.Scoring.Workers)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KITE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, processor)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "topic", domain.TopicBatchSubmitted)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, processor, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kite is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kite shutdown complete")
}

// setupLogger installs the process-wide structured logger.
func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("KITE_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// applyEnvOverrides lets deployments tweak individual settings without
// a config file. Only the knobs that differ between environments are
// exposed; everything else comes from the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KITE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KITE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KITE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KITE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KITE_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KITE_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KITE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KITE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KITE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KITE_BACKEND_URL"); v != "" {
		cfg.Scoring.BackendURL = v
	}
	if v := os.Getenv("KITE_BACKEND_MODEL"); v != "" {
		cfg.Scoring.BackendModel = v
	}
	if v := os.Getenv("KITE_WEIGHTS_PATH"); v != "" {
		cfg.Scoring.WeightsPath = v
	}
	if v := os.Getenv("KITE_PREPROCESSOR_PATH"); v != "" {
		cfg.Scoring.PreprocessorPath = v
	}
	if v := os.Getenv("KITE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KITE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                🪁 KITE                    ║")
	fmt.Println("  ║     Recurring Charge Risk Engine          ║")
	fmt.Println("  ║      Catch the charges that drift.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /process           - Score a batch of transactions")
	fmt.Println("    GET  /alerts            - List alerts")
	fmt.Println("    POST /users             - Onboard a user")
	fmt.Println("    DELETE /users/{id}      - Deactivate a user")
	fmt.Println("    GET  /users/{id}/config - Get alert policy")
	fmt.Println("    PUT  /users/{id}/config - Update alert policy")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the coin rewards server that backs the browser's
  coin balance, coupon dialog and redemption history.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load .env and config
  2. Set up structured logging
  3. Initialize SQLite store
  4. Load the coin manager (persisted balance)
  5. Attach metrics, start the ledger reconciler
  6. Start accrual if autostart is on (awards a catch-up coin if due)
  7. Start the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -env     .env file (default: .env, missing file is ignored)
  -listen  HTTP listen address (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, wait for active requests
  2. Stop accrual (waits for an in-flight tick, flushes the balance)
  3. Stop the reconciler
  4. Close database connection

EXAMPLES:
  ./server -db="./data/coins.db"
  ./server -config=coins.yaml -listen=127.0.0.1:9090
  COINS_ACCRUAL_INTERVAL=5s ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - coins/manager.go: Engine facade
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/warp/coin-rewards/api"
	"github.com/warp/coin-rewards/coins"
	"github.com/warp/coin-rewards/config"
	"github.com/warp/coin-rewards/logging"
	"github.com/warp/coin-rewards/metrics"
	"github.com/warp/coin-rewards/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coin server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	envPath := flag.String("env", ".env", "dotenv file")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	dotenvErr := config.LoadDotEnv(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := logging.Setup(logging.Options{
		Service: "coin-rewards",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	if err != nil {
		return err
	}
	if dotenvErr != nil {
		logger.Debug("no .env file loaded", "path", *envPath, "error", dotenvErr)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize engine
	ctx := context.Background()
	mgr, err := coins.NewManager(ctx, store, coins.Options{
		Accrual: cfg.CoinsAccrual(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("load coin balance: %w", err)
	}
	logger.Info("coin balance loaded", "balance", mgr.Balance(), "db", cfg.DBPath)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	detach := recorder.Attach(mgr)
	defer detach()
	recorder.ObserveBalance(mgr.Snapshot())

	reconciler := coins.NewReconciler(mgr, cfg.ReconcileInterval.Duration, logger)
	reconciler.Start()
	defer reconciler.Stop()

	if cfg.AutostartEnabled() {
		if err := mgr.StartAccrual(ctx); err != nil {
			return fmt.Errorf("start accrual: %w", err)
		}
		recorder.ObserveAccrualRunning(true)
	}

	// Create router
	handler := api.NewHandler(mgr, recorder, logger)
	handler.Health = store
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       reg,
	})

	// Create server. No WriteTimeout: /api/events holds its connection open.
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", "http://"+cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "error", err)
	}

	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Error("final balance flush failed", "balance", mgr.Balance(), "error", err)
	} else {
		logger.Info("server stopped", "balance", mgr.Balance())
	}
	return nil
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the barstock inventory server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration (.env honored in dev)
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Optionally seed the demo scenario into an empty database
  5. Start the stale-session scheduler
  6. Start server with graceful shutdown

CONFIGURATION (environment, BARSTOCK_ prefix):
  BARSTOCK_PORT                HTTP server port (default: 8080)
  BARSTOCK_DB_PATH             SQLite database path (":memory:" works)
  BARSTOCK_LOG_LEVEL           trace|debug|info|warn|error
  BARSTOCK_VARIANCE_THRESHOLD  Units of variance before a reason is required
  BARSTOCK_SESSION_MAX_AGE     How long a count session may stay open
  BARSTOCK_SCHEDULER_INTERVAL  Stale-session scan cadence (0 disables)
  BARSTOCK_CORS_ORIGINS        Comma-separated browser origin allowlist
  BARSTOCK_SEED_DEMO           Seed the taproom scenario when DB is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LesCam/barstock/api"
	"github.com/LesCam/barstock/config"
	"github.com/LesCam/barstock/logging"
	"github.com/LesCam/barstock/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		ServiceName: "barstock",
		Level:       cfg.LogLevel,
		Console:     true,
	})

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("initializing database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, log)
	if threshold, err := decimal.NewFromString(cfg.VarianceThreshold); err == nil {
		handler.Sessions.Threshold = &threshold
	} else {
		log.Warn().Str("value", cfg.VarianceThreshold).Msg("invalid variance threshold, using default")
	}

	if cfg.SeedDemo {
		if err := handler.SeedDemo(context.Background()); err != nil {
			log.Warn().Err(err).Msg("seeding demo data")
		}
	}

	// Stale-session scheduler
	var scheduler *api.AutoCloseScheduler
	if cfg.SchedulerInterval > 0 {
		scheduler = api.NewAutoCloseScheduler(handler.Sessions, handler.SessionStore, log)
		scheduler.CheckInterval = cfg.SchedulerInterval
		scheduler.MaxAge = cfg.SessionMaxAge
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create router and server
	router := api.NewRouter(handler, cfg.CORSOrigins)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reservation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Set up logging and tracing
  3. Open the store and migrate the schema
  4. Connect Redis for the sweep lock (optional)
  5. Wire services, handler, router and sweep scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (overrides PORT)
  -db-driver  sqlite | postgres | mysql | memory (overrides DB_DRIVER)
  -db         DSN or SQLite path (overrides DB_DSN)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush traces, close Redis and the database
  5. Exit

EXAMPLES:
  # Local SQLite file
  ./server -db="./data/reservations.db"

  # PostgreSQL with the sweep lock in Redis
  DB_DRIVER=postgres DB_DSN="host=db user=app dbname=sales" \
    REDIS_ADDRESS=redis:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Background sweeps
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

	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/config"
	"github.com/warp/reservation-engine/observability"
	"github.com/warp/reservation-engine/sales"
	"github.com/warp/reservation-engine/store/gormstore"
	"github.com/warp/reservation-engine/store/memory"
)

// backend is what the server needs from a store.
type backend interface {
	sales.TxStore
	api.Pinger
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (backend, func() error, error) {
	if cfg.DBDriver == "memory" {
		log.Warn("Using in-memory store; data is lost on exit")
		return memory.New(), func() error { return nil }, nil
	}
	store, err := gormstore.Open(gormstore.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Logger:          log,
		Tracing:         cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	driver := flag.String("db-driver", cfg.DBDriver, "Database driver (sqlite, postgres, mysql, memory)")
	dsn := flag.String("db", cfg.DBDSN, "Database DSN or SQLite path")
	flag.Parse()
	cfg.Port, cfg.DBDriver, cfg.DBDSN = *port, *driver, *dsn
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Tracing
	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up tracing")
	}

	// Initialize store
	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer closeStore()

	// Sweep lock
	var locker api.Locker
	rdb, err := config.ConnectRedis(context.Background(), cfg.RedisAddress)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
		locker = api.NewRedisLocker(rdb)
	} else {
		log.Warn("REDIS_ADDRESS not set; sweeps run without a distributed lock")
	}

	// Services
	opts := sales.Options{Store: store, Logger: log}
	reservations := sales.NewReservationService(opts)
	catalog := sales.NewCatalogService(opts)

	handler := api.NewHandler(reservations, catalog, store, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	scheduler := api.NewSweepScheduler(reservations, locker, log)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.Enabled = cfg.SweepEnabled
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "driver": cfg.DBDriver}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := shutdownTracing(ctx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Server stopped")
}

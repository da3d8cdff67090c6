/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave balance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment, flags override)
  2. Build the zap logger
  3. Initialize SQLite store and seed the leave-type catalog
  4. Wire notifications (log, plus Kafka when brokers are configured)
  5. Create the engine, API handler and router
  6. Start the accrual scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go for the full list (PORT, DB_PATH, LOG_LEVEL,
  ACCRUAL_*, KAFKA_*, CORS_ORIGINS, LEAVE_TYPES_FILE).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the Kafka writer and the database connection

SEE ALSO:
  - api/server.go: Router configuration
  - leave/engine.go: Engine wiring
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, *port, *dbPath, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cfg *config.Config, port, dbPath string, logger *zap.Logger) error {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	if err := seedLeaveTypes(context.Background(), store, cfg.LeaveTypesFile); err != nil {
		return fmt.Errorf("seed leave types: %w", err)
	}

	notifier := leave.Notifier(notify.NewLogNotifier(logger))
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.KafkaBrokers, logger)
		kafkaNotifier := notify.NewKafkaNotifier(writer, cfg.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = notify.Multi{notifier, kafkaNotifier}
		logger.Info("publishing leave events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	carryCap := generic.Days(cfg.CarryForwardCap)
	retry := generic.DefaultRetryPolicy
	retry.Attempts = cfg.RetryAttempts
	engine := leave.NewEngine(leave.Config{
		Store:           store,
		Directory:       store,
		Calendar:        store,
		LeaveTypes:      store,
		Notifier:        notifier,
		Logger:          logger,
		CarryForwardCap: &carryCap,
		Retry:           &retry,
		Concurrency:     cfg.AccrualConcurrency,
	})

	handler := api.NewHandler(engine, store, logger)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewAccrualScheduler(engine, logger)
	scheduler.Progress = store
	scheduler.CheckInterval = cfg.AccrualInterval
	scheduler.Enabled = cfg.AccrualEnabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", "http://localhost:"+port), zap.String("db", dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// seedLeaveTypes upserts the configured catalog file. Without a file the
// built-in catalog is installed only into an empty database.
func seedLeaveTypes(ctx context.Context, store *sqlite.Store, path string) error {
	if path == "" {
		existing, err := store.ListLeaveTypes(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
	}
	types, err := factory.NewLeaveTypeFactory().LoadFile(path)
	if err != nil {
		return err
	}
	for _, lt := range types {
		if err := store.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
	}
	return nil
}

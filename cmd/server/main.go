/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bakery payroll server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the store selected by -store (memory, sqlite or redis)
  4. Create the payroll engine with lock, notifier and metrics
  5. Start the refresh scheduler
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -store      memory | sqlite | redis (default: sqlite)
  -db         SQLite database path (default: ./payroll.db)
              Use ":memory:" for in-memory database
  -redis      Redis address (default: localhost:6379)
  -tz         Time zone used to derive pay dates (default: UTC)
  -refresh    Status refresh interval, 0 disables (default: 15m)
  -log-level  debug | info | warn | error

ENVIRONMENT:
  Every flag has an environment counterpart (PORT, STORE_DRIVER,
  SQLITE_PATH, REDIS_ADDR, PAYROLL_TIMEZONE, REFRESH_INTERVAL, LOG_LEVEL),
  plus BUSINESS_NAME, CORS_ORIGINS and the document keys. See config/.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Several instances sharing Redis
  ./server -store=redis -redis=redis:6379

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
  - payroll/engine.go: Engine options
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/api"
	"github.com/dagm95/CXinas-bakery-system/config"
	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/generic/store"
	"github.com/dagm95/CXinas-bakery-system/logger"
	"github.com/dagm95/CXinas-bakery-system/payroll"
	"github.com/dagm95/CXinas-bakery-system/store/redis"
	"github.com/dagm95/CXinas-bakery-system/store/sqlite"
)

// substrate is everything the engine and handlers need from a store driver.
type substrate struct {
	kv     generic.KV
	locker generic.Locker
	events interface {
		generic.Notifier
		generic.Subscriber
	}
	runs   api.RunStore
	closer io.Closer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	sub, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if sub.closer != nil {
		defer sub.closer.Close()
	}

	metrics := api.NewMetrics()
	repo := payroll.NewRepository(sub.kv, cfg.Keys)
	engine := payroll.NewEngine(repo,
		payroll.WithLocation(loc),
		payroll.WithLogger(log.Named("payroll")),
		payroll.WithObserver(metrics),
		payroll.WithNotifier(sub.events),
		payroll.WithLocker(sub.locker),
		payroll.WithOrigin(origin()),
	)

	scheduler := api.NewRefreshScheduler(engine, log)
	scheduler.Interval = cfg.RefreshInterval
	scheduler.Runs = sub.runs
	scheduler.Metrics = metrics

	handler := api.NewHandler(engine)
	handler.Notifier = sub.events
	handler.Events = sub.events
	handler.Scheduler = scheduler
	handler.Runs = sub.runs
	handler.Logger = log.Named("api")
	handler.Business = cfg.BusinessName

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.Named("http"),
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("tz", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(cfg *config.Config, log *zap.Logger) (*substrate, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &substrate{
			kv:     store.NewMemory(),
			locker: store.NewKeyedMutex(),
			events: store.NewBroadcaster(),
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		// Versioned writes are enforced by the database; the lock only
		// serializes this process.
		return &substrate{
			kv:     db,
			locker: store.NewKeyedMutex(),
			events: store.NewBroadcaster(),
			runs:   db,
			closer: db,
		}, nil

	case config.DriverRedis:
		rdb, err := redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			LockTTL:  cfg.Redis.LockTTL,
		}, redis.WithLogger(log.Named("redis")))
		if err != nil {
			return nil, err
		}
		return &substrate{
			kv:     rdb,
			locker: rdb,
			events: rdb,
			closer: rdb,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// origin identifies this process on published events.
func origin() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}

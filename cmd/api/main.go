package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_booking_backend/internal/appointments"
	"clinic_booking_backend/internal/appointments/memstore"
	"clinic_booking_backend/internal/appointments/repository"
	"clinic_booking_backend/internal/appointments/seed"
	"clinic_booking_backend/internal/appointments/service"
	apphttp "clinic_booking_backend/internal/http"
	"clinic_booking_backend/internal/http/router"
	"clinic_booking_backend/internal/notification"
	"clinic_booking_backend/internal/scheduler"
	"clinic_booking_backend/migrations"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/db"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	metricsNamespace = "clinic"
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.GetBookingStore())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	collector := metrics.NewCollector(metricsNamespace)

	store, health, closeStore := initStore(ctx, cfg, log)
	defer closeStore()

	gateway, closeGateway := initGateway(ctx, cfg, log)
	defer closeGateway()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	val := validator.New()
	svc := service.New(store, gateway, time.Now, cfg, log, collector)
	appointmentsModule := appointments.NewModule(svc, val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  health,
		Metrics: collector,
		Modules: []apphttp.Module{
			appointmentsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		// Let in-flight notifications finish before their backends close.
		svc.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// initStore returns the configured booking store, an optional health
// checker, and a cleanup func.
func initStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.Store, apphttp.HealthChecker, func()) {
	if cfg.GetBookingStore() == config.StoreMemory {
		store := memstore.New(cfg.GetLockTimeout())
		applySeed(ctx, cfg, store, log)
		log.Warn("using in-memory booking store; data is lost on restart")
		return store, nil, func() {}
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if cfg.GetMigrationsEnabled() {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, migrations.FS, log)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	repo := repository.New(pool, cfg.GetLockTimeout())
	applySeed(ctx, cfg, repo, log)
	return repo, pool, pool.Close
}

func applySeed(ctx context.Context, cfg config.SeedConfig, target seed.Target, log *logger.Logger) {
	path := cfg.GetSeedFile()
	if path == "" {
		return
	}
	fixture, err := seed.LoadFile(path)
	if err != nil {
		log.Error("failed to load seed file", "error", err, "path", path)
		panic("failed to load seed file: " + err.Error())
	}
	res, err := seed.Apply(ctx, target, fixture)
	if err != nil {
		log.Error("failed to apply seed file", "error", err, "path", path)
		panic("failed to apply seed file: " + err.Error())
	}
	log.Info("seed applied", "path", path, "doctors", res.Doctors, "rooms", res.Rooms)
}

// initGateway queues notifications through asynq when Redis is configured
// and otherwise performs them in-process.
func initGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.NotificationGateway, func()) {
	if cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewClient(cfg)
		if err == nil {
			log.Info("notifications queued via asynq", "queue", cfg.GetAsynqQueueName())
			return client, func() { _ = client.Close() }
		}
		log.Error("failed to initialize scheduler client, delivering notifications in-process", "error", err)
	} else {
		log.Warn("REDIS_URL not configured; notifications delivered in-process")
	}

	var gateway *notification.Gateway
	if err := withRetry(ctx, log, "notification gateway", 5, 2*time.Second, func() error {
		g, err := notification.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		gateway = g
		return nil
	}); err != nil {
		log.Error("failed to initialize notification gateway", "error", err)
		panic("failed to initialize notification gateway: " + err.Error())
	}
	return gateway, func() {}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

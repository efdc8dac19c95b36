// Command seed loads doctors and rooms from a YAML fixture into Postgres.
//
//	go run ./cmd/seed -file seed/fixtures.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clinic_booking_backend/internal/appointments/repository"
	"clinic_booking_backend/internal/appointments/seed"
	"clinic_booking_backend/migrations"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/db"
	"clinic_booking_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	path := flag.String("file", cfg.GetSeedFile(), "path to the YAML fixture")
	migrate := flag.Bool("migrate", cfg.GetMigrationsEnabled(), "apply migrations before seeding")
	flag.Parse()

	log := logger.New(cfg.Env)
	if *path == "" {
		log.Error("no seed file given; pass -file or set SEED_FILE")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *path, *migrate, log); err != nil {
		log.Error("seed failed", "error", err, "path", *path)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, migrate bool, log *logger.Logger) error {
	fixture, err := seed.LoadFile(path)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
			return err
		}
	}

	res, err := seed.Apply(ctx, repository.New(pool, cfg.GetLockTimeout()), fixture)
	if err != nil {
		return err
	}
	log.Info("seed applied", "path", path, "doctors", res.Doctors, "rooms", res.Rooms)
	return nil
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/bootstrap"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "info", "expiry-worker")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "expiry-worker")

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal().Str("storage", cfg.StorageDriver).Msg("expiry worker needs the postgres store")
	}
	if cfg.AppointmentTTL <= 0 {
		log.Warn().Msg("APPOINTMENT_TTL is 0, nothing to release")
		return
	}
	if cfg.WorkerInterval <= 0 {
		cfg.WorkerInterval = time.Minute
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("appointment_ttl", cfg.AppointmentTTL).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the worker never books, so the slot lock is not needed
	cfg.RedisEnabled = false

	deps, err := bootstrap.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("dependency setup failed")
	}
	defer deps.Close(log)

	svc := appointment.NewService(deps.Repo, deps.Locker, cfg, log, nil)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ReleaseStalePending(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("expiry run error")
		return
	}
	log.Info().Int("released", n).Dur("took", time.Since(start)).Msg("expiry run complete")
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/caredesk/clinic-scheduling/internal/booking"
	"github.com/caredesk/clinic-scheduling/internal/clock"
	"github.com/caredesk/clinic-scheduling/internal/config"
	"github.com/caredesk/clinic-scheduling/internal/db"
	"github.com/caredesk/clinic-scheduling/internal/logging"
	"github.com/caredesk/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/caredesk/clinic-scheduling/internal/redis"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
	"github.com/caredesk/clinic-scheduling/internal/slots"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("dev", "info")
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.SweepSchedule).
		Dur("no_show_grace", cfg.NoShowGrace).
		Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	m := metrics.NewSchedulingMetrics(nil)
	clk := clock.System()

	scheduleRepo := schedule.NewPgRepository(pgPool)
	schedules := schedule.NewService(scheduleRepo, cfg.DefaultSlotSize, logger)

	bookingRepo := booking.NewPgRepository(pgPool)
	generator := slots.NewGenerator(schedules, bookingRepo)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(bookingRepo, generator, schedules, locker, clk, cfg.NoShowGrace, m, logger)

	// Run once at startup, then on the cron schedule.
	runOnce(rootCtx, svc, logger)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		runOnce(rootCtx, svc, logger)
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("invalid sweep schedule")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping sweep worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Msg("sweep job did not finish before shutdown timeout")
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	res, err := svc.Sweep(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().
		Int("completed", res.Completed).
		Int("no_shows", res.NoShows).
		Int("cancelled_pending", res.CancelledPending).
		Dur("took", time.Since(start)).
		Msg("sweep run complete")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caredesk/clinic-scheduling/internal/api"
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

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("dev", "info")
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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
	logger.Info().Msg("connected to Redis")

	m := metrics.NewSchedulingMetrics(nil)
	clk := clock.System()

	scheduleRepo := schedule.NewPgRepository(pgPool)
	schedules := schedule.NewService(scheduleRepo, cfg.DefaultSlotSize, logger)

	bookingRepo := booking.NewPgRepository(pgPool)
	generator := slots.NewGenerator(schedules, bookingRepo)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	bookings := booking.NewService(bookingRepo, generator, schedules, locker, clk, cfg.NoShowGrace, m, logger)

	router := api.NewRouter(api.RouterConfig{
		Schedules: schedules,
		Slots:     generator,
		Bookings:  bookings,
		Clock:     clk,
		Metrics:   m,
		Logger:    logger,
		PgPool:    pgPool,
		Redis:     rdb,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/caredesk/clinic-scheduling/internal/booking"
	"github.com/caredesk/clinic-scheduling/internal/clock"
	"github.com/caredesk/clinic-scheduling/internal/observability/metrics"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
	"github.com/caredesk/clinic-scheduling/internal/slots"
)

type RouterConfig struct {
	Schedules *schedule.Service
	Slots     *slots.Generator
	Bookings  *booking.Service
	Clock     clock.Clock
	Metrics   *metrics.SchedulingMetrics
	Logger    zerolog.Logger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	a := &API{
		schedules: cfg.Schedules,
		slots:     cfg.Slots,
		bookings:  cfg.Bookings,
		clk:       cfg.Clock,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", a.listDoctorsHandler)
		r.Post("/", a.createDoctorHandler)
		r.Delete("/{id}/", a.deactivateDoctorHandler)
		r.Get("/{id}/schedule/", a.getScheduleHandler)
		r.Put("/{id}/schedule/", a.replaceScheduleHandler)
		r.Get("/{id}/leaves/", a.listLeavesHandler)
		r.Post("/{id}/leaves/", a.addLeaveHandler)
		r.Get("/{id}/availability/", a.availabilityHandler)
	})

	r.Post("/patients/", a.createPatientHandler)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", a.createAppointmentHandler)
		r.Get("/", a.listAppointmentsHandler)
		r.Get("/{id}/", a.getAppointmentHandler)
		r.Patch("/{id}/", a.updateAppointmentHandler)
		r.Post("/{id}/check-in", a.checkInHandler)
	})

	return r
}

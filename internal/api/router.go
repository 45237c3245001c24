package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RouterConfig wires the HTTP surface. PgPool and Redis may be nil when the
// in-memory store is used or Redis is disabled. Metrics and RateLimiter may be nil.
type RouterConfig struct {
	Booking     BookingService
	Schedule    ScheduleService
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Metrics     http.Handler
	RateLimiter *rate.Limiter
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)
	if cfg.RateLimiter != nil {
		r.Use(RateLimitMiddleware(cfg.RateLimiter))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/doctors/{id}/slots", func(r chi.Router) {
		r.Get("/", listSlotsHandler(cfg.Schedule))
		r.Post("/", addSlotHandler(cfg.Schedule))
		r.Post("/generate", generateSlotsHandler(cfg.Schedule))
		r.Post("/generate-availability", generateFromAvailabilityHandler(cfg.Schedule))
	})
	r.Put("/slots/{id}", updateSlotHandler(cfg.Schedule))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Schedule))

	r.Post("/appointments", createAppointmentHandler(cfg.Booking))
	r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))

	return r
}

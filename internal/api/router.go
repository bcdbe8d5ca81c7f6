package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/caredesk/provider-scheduling/internal/availability"
	"github.com/caredesk/provider-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service      SchedulerService
	Availability availability.Store
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot queries and provider availability administration
	r.Get("/providers/{id}/slots", slotsHandler(cfg.Service))
	r.Put("/providers/{id}/availability/{weekday}", setWindowsHandler(cfg.Availability))
	r.Put("/providers/{id}/exceptions/{date}", setExceptionHandler(cfg.Availability))

	// Appointment lifecycle
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Service, scheduling.ActionConfirm))
	r.Post("/appointments/{id}/check-in", transitionHandler(cfg.Service, scheduling.ActionCheckIn))
	r.Post("/appointments/{id}/start", transitionHandler(cfg.Service, scheduling.ActionStart))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service, scheduling.ActionComplete))
	r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service, scheduling.ActionNoShow))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))

	return r
}

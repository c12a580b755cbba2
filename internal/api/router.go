package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service        AppointmentService
	Auth           *Authenticator
	Limiter        *RateLimiter
	Health         *HealthHandler
	Metrics        http.Handler
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	h := newHandlers(cfg.Service, cfg.Logger)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(cfg.Auth.Middleware)

		booking := r.With()
		if cfg.Limiter != nil {
			booking = r.With(cfg.Limiter.Middleware)
		}
		booking.Post("/appointments", h.book)

		r.Get("/appointments/{id}", h.get)
		r.Post("/appointments/{id}/cancel", h.cancel)

		r.Get("/patients/{id}/appointments/upcoming", h.list(cfg.Service.UpcomingForPatient))
		r.Get("/patients/{id}/appointments/history", h.list(cfg.Service.HistoryForPatient))
		r.Get("/doctors/{id}/appointments/upcoming", h.list(cfg.Service.UpcomingForDoctor))
		r.Get("/doctors/{id}/slots", h.openSlots)
		r.Get("/doctors/{id}/load", h.doctorLoad)
	})

	return r
}

package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookgrid/availability-engine/internal/idempotency"
	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware(idemp))

	r.Post("/v1/holds", h.AcquireHold)
	r.Post("/v1/holds/confirm", h.ConfirmHold)
	r.Post("/v1/holds/release", h.ReleaseHold)
	r.Post("/v1/bookings/cancel", h.CancelBooking)
	r.Get("/v1/availability/check", h.CheckSlot)
	r.Get("/v1/availability/timeline", h.GetTimeline)
	r.Get("/v1/availability/next", h.FindNext)
	r.Post("/v1/availability/days", h.UpsertDays)
	r.Post("/v1/availability/blocks", h.InsertBlock)
	r.Post("/v1/admin/expire-holds", h.ExpireHolds)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

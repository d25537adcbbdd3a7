package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avail_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	SlotChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avail_slot_checks_total",
			Help: "Slot availability checks by outcome",
		},
		[]string{"outcome"},
	)

	CheckSlotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avail_check_slot_seconds",
			Help:    "Duration of slot availability checks",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsAcquiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_holds_acquired_total",
			Help: "Multi-date hold acquisitions fully succeeded",
		},
	)

	HoldsConfirmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_holds_confirmed_total",
			Help: "Holds confirmed into bookings",
		},
	)

	HoldsReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_holds_released_total",
			Help: "Hold days explicitly released",
		},
	)

	HoldsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_holds_expired_total",
			Help: "Hold days reclaimed by the sweeper",
		},
	)

	BookingsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_bookings_cancelled_total",
			Help: "Bookings cancelled back to available",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avail_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avail_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

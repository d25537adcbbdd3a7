package scheduling

import (
	"context"
	"time"

	"github.com/bookgrid/availability-engine/internal/observability"
)

// Sweeper reclaims abandoned holds. The whole sweep is one batch
// conditional update sharing its predicate with ConfirmBooking, so for
// any record exactly one of confirm and expire wins and the loser sees
// a clean state mismatch.
type Sweeper struct {
	store  Store
	ttl    time.Duration
	clock  Clock
	logger observability.Logger
}

func NewSweeper(store Store, ttl time.Duration, clock Clock, logger observability.Logger) *Sweeper {
	return &Sweeper{store: store, ttl: ttl, clock: clock, logger: logger}
}

// ExpireHolds reverts every hold older than the TTL and returns the
// cleaned count. Safe to invoke on demand between scheduled runs.
func (s *Sweeper) ExpireHolds(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.ttl)
	n, err := s.store.ExpireHolds(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	observability.HoldsExpiredTotal.Add(float64(n))
	if n > 0 {
		s.logger.WithField("cleaned", n).Info("expired stale holds")
	}
	return n, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireHolds(ctx); err != nil {
				s.logger.Error("sweep failed", err)
			}
		}
	}
}

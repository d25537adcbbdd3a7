package scheduling

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bookgrid/availability-engine/internal/domain"
)

// Finder scans forward for the first bookable window. It is a greedy
// hourly walk over CheckSlot, O(horizon/step) checker calls; a
// timeline-driven jump to the next interval end would be cheaper but
// every answer returned here is one the checker itself accepted.
type Finder struct {
	checker *Checker
}

func NewFinder(checker *Checker) *Finder {
	return &Finder{checker: checker}
}

// FindNext returns the start of the first [t, t+durationHours) window
// the checker reports fully available, scanning hour by hour from
// fromTime. domain.ErrNotFound past the horizon.
func (f *Finder) FindNext(ctx context.Context, resourceID uuid.UUID, fromTime time.Time, durationHours, horizonDays int) (time.Time, error) {
	if durationHours <= 0 {
		return time.Time{}, errors.Wrap(domain.ErrValidation, "duration must be positive")
	}
	if horizonDays <= 0 {
		return time.Time{}, errors.Wrap(domain.ErrValidation, "horizon must be positive")
	}

	duration := time.Duration(durationHours) * time.Hour
	horizon := fromTime.AddDate(0, 0, horizonDays)

	// Scan on hour boundaries, starting no earlier than fromTime.
	t := fromTime.Truncate(time.Hour)
	if t.Before(fromTime) {
		t = t.Add(time.Hour)
	}

	for ; t.Before(horizon); t = t.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		res, err := f.checker.CheckSlot(ctx, CheckRequest{
			ResourceID: resourceID,
			Start:      t,
			End:        t.Add(duration),
		})
		if err != nil {
			return time.Time{}, err
		}
		if res.Available {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(domain.ErrNotFound, "no %dh window within %d days", durationHours, horizonDays)
}

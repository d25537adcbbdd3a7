package scheduling

import (
	"time"

	"github.com/bookgrid/availability-engine/internal/domain"
)

type BufferVerdict int

const (
	// BufferInert: now is at or past the maintenance end, the buffer no
	// longer restricts anything.
	BufferInert BufferVerdict = iota
	// BufferActive: checkout has happened and the turnover window is
	// still running. Any request starting before MaintenanceEnd is
	// blocked.
	BufferActive
	// BufferPending: checkout is in the future. The day is bookable for
	// requests starting at or after MaintenanceEnd, and the caller must
	// be told check-in cannot precede it.
	BufferPending
)

// BufferWindow is the post-checkout unavailability window of one booking.
type BufferWindow struct {
	CheckoutAt     time.Time
	MaintenanceEnd time.Time
	Verdict        BufferVerdict
}

// BlocksStart reports whether a request starting at start collides with
// the window. Cancelled bookings bypass this entirely: the caller must
// not compute a window for a booking that no longer exists.
func (w BufferWindow) BlocksStart(start time.Time) bool {
	return start.Before(w.MaintenanceEnd)
}

// MaintenanceWindow computes the turnover window for a checkout on
// checkoutDate at checkoutTimeOfDay local to loc. bufferHours outside
// the 1..12 bound is clamped; zero means the default. The checkout
// instant is built explicitly in loc, never by UTC offset arithmetic,
// so the window cannot slip across a day boundary.
func MaintenanceWindow(checkoutDate time.Time, checkoutTimeOfDay string, bufferHours int, now time.Time, loc *time.Location) (BufferWindow, error) {
	if checkoutTimeOfDay == "" {
		checkoutTimeOfDay = domain.DefaultCheckOutTime
	}
	switch {
	case bufferHours == 0:
		bufferHours = domain.DefaultBufferHours
	case bufferHours < domain.MinBufferHours:
		bufferHours = domain.MinBufferHours
	case bufferHours > domain.MaxBufferHours:
		bufferHours = domain.MaxBufferHours
	}

	checkoutAt, err := atTimeOfDay(checkoutDate, checkoutTimeOfDay, loc)
	if err != nil {
		return BufferWindow{}, err
	}
	w := BufferWindow{
		CheckoutAt:     checkoutAt,
		MaintenanceEnd: checkoutAt.Add(time.Duration(bufferHours) * time.Hour),
	}
	switch {
	case !now.Before(w.MaintenanceEnd):
		w.Verdict = BufferInert
	case !now.Before(checkoutAt):
		w.Verdict = BufferActive
	default:
		w.Verdict = BufferPending
	}
	return w, nil
}

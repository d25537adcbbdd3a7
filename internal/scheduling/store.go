package scheduling

import (
	"context"
	"time"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/google/uuid"
)

// Store is the persistence boundary of the engine. Every mutating method
// must be an atomic conditional write: "transition from X to Y only if
// the current status/holder/TTL matches" as a single indivisible
// operation, never a read followed by a write. The confirm-vs-expire
// race is resolved entirely by that property, with the loser observing a
// state mismatch.
type Store interface {
	GetDay(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.AvailabilityDay, error)

	// GetDays returns the day records for [from, to), ordered by date.
	// Missing days are simply absent; callers treat them as not bookable.
	GetDays(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityDay, error)

	// AcquireDay transitions available → on_hold conditioned on the
	// current status being available, or on_hold by the same holder
	// (idempotent; the original heldAt is kept so a re-acquire never
	// extends the TTL). Returns domain.ErrNotFound for a missing day and
	// domain.ErrStateConflict for any other state.
	AcquireDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID, heldAt time.Time) error

	// ConfirmBooking transitions every date on_hold → booked and writes
	// the paired timeline events in one transaction. Each day transition
	// is conditioned on holder match and held_at > FreshAfter. Any
	// single-date failure rolls the whole confirmation back and returns
	// domain.ErrExpiredHold or domain.ErrStateConflict.
	ConfirmBooking(ctx context.Context, upd ConfirmUpdate) error

	// ReleaseDay transitions on_hold → available only where the holder
	// matches. Returns false (no error) when nothing matched.
	ReleaseDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID) (bool, error)

	// CancelBooking reverts all booked days carrying bookingRef to
	// available and deletes the booking's timeline events, in one
	// transaction. Returns the day count; zero is not an error.
	CancelBooking(ctx context.Context, resourceID, bookingRef uuid.UUID) (int64, error)

	// ExpireHolds reverts every on_hold day with held_at < cutoff to
	// available in a single batch conditional update.
	ExpireHolds(ctx context.Context, cutoff time.Time) (int64, error)

	// GetEvents returns timeline events with time in [from, to) ordered
	// by time. A zero from means from the beginning of the timeline.
	GetEvents(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityEvent, error)
}

// ConfirmUpdate carries one hold-to-booking confirmation.
type ConfirmUpdate struct {
	ResourceID uuid.UUID
	Dates      []time.Time
	Holder     uuid.UUID
	// FreshAfter is now - TTL: a hold with held_at at or before this
	// instant is already expired even if the sweeper has not run yet.
	FreshAfter time.Time
	BookingRef uuid.UUID
	BookedAt   time.Time
	Events     []domain.AvailabilityEvent
}

// PropertyCatalog is the read-only slice of the property collaborator
// the engine needs: timezone, checkout defaults, buffer hours.
type PropertyCatalog interface {
	GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error)
}

package scheduling

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/observability"
)

// HoldManager runs the hold state machine on top of the day grid. The
// hold TTL is a single externally configured constant; holds cannot be
// extended, only released and re-acquired.
type HoldManager struct {
	store   Store
	catalog PropertyCatalog
	clock   Clock
	ttl     time.Duration
	logger  observability.Logger
}

func NewHoldManager(store Store, catalog PropertyCatalog, clock Clock, ttl time.Duration, logger observability.Logger) *HoldManager {
	return &HoldManager{store: store, catalog: catalog, clock: clock, ttl: ttl, logger: logger}
}

func (m *HoldManager) TTL() time.Duration { return m.ttl }

// AcquireHold soft-locks every date for holder. Each date transition is
// atomic on its own; there is no cross-date atomicity. On partial
// failure the already-acquired dates stay held and come back in the
// PartialFailureError so the caller can compensate with ReleaseHold.
func (m *HoldManager) AcquireHold(ctx context.Context, resourceID uuid.UUID, dates []time.Time, holder uuid.UUID) ([]time.Time, error) {
	if err := validateDates(dates); err != nil {
		return nil, err
	}
	now := m.clock.Now()

	var held []time.Time
	var failed []domain.DateFailure
	for _, d := range normalizeDates(dates) {
		if err := m.store.AcquireDay(ctx, resourceID, d, holder, now); err != nil {
			failed = append(failed, domain.DateFailure{Date: d, Err: err})
			continue
		}
		held = append(held, d)
	}

	if len(failed) > 0 {
		m.logger.WithField("resource_id", resourceID.String()).
			WithField("failed_dates", len(failed)).
			Warn("hold acquisition incomplete")
		return held, &domain.PartialFailureError{Op: "acquire hold", Succeeded: held, Failed: failed}
	}
	observability.HoldsAcquiredTotal.Inc()
	return held, nil
}

// ConfirmHold turns a fresh hold into a booking: every date flips to
// booked and the reservation plus derived maintenance event pairs land
// on the timeline, all in one transaction. The freshness predicate is
// time-based, not sweep-based: an expired hold fails here even if the
// sweeper never ran.
func (m *HoldManager) ConfirmHold(ctx context.Context, resourceID uuid.UUID, dates []time.Time, holder, bookingRef uuid.UUID) error {
	if err := validateDates(dates); err != nil {
		return err
	}
	if bookingRef == uuid.Nil {
		return errors.Wrap(domain.ErrValidation, "booking ref required")
	}

	prop, err := m.catalog.GetProperty(ctx, resourceID)
	if err != nil {
		return err
	}
	prop.Normalize()
	loc, err := prop.Location()
	if err != nil {
		return err
	}

	now := m.clock.Now()
	days := normalizeDates(dates)
	events, err := bookingEvents(prop, loc, resourceID, days, holder, bookingRef)
	if err != nil {
		return err
	}

	upd := ConfirmUpdate{
		ResourceID: resourceID,
		Dates:      days,
		Holder:     holder,
		FreshAfter: now.Add(-m.ttl),
		BookingRef: bookingRef,
		BookedAt:   now,
		Events:     events,
	}
	if err := m.store.ConfirmBooking(ctx, upd); err != nil {
		return err
	}
	observability.HoldsConfirmedTotal.Inc()
	m.logger.WithField("booking_ref", bookingRef.String()).Info("hold confirmed")
	return nil
}

// ReleaseHold reverts holder's holds to available. Idempotent: dates not
// held, held by someone else or already released are skipped. Returns
// how many days were actually released.
func (m *HoldManager) ReleaseHold(ctx context.Context, resourceID uuid.UUID, dates []time.Time, holder uuid.UUID) (int, error) {
	if err := validateDates(dates); err != nil {
		return 0, err
	}
	released := 0
	for _, d := range normalizeDates(dates) {
		ok, err := m.store.ReleaseDay(ctx, resourceID, d, holder)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	observability.HoldsReleasedTotal.Add(float64(released))
	return released, nil
}

// CancelBooking reverts every booked day of bookingRef to available and
// removes the booking's event pairs, voiding the maintenance buffer
// immediately. Idempotent: a booking with no remaining days cancels to
// zero affected records.
func (m *HoldManager) CancelBooking(ctx context.Context, resourceID, bookingRef uuid.UUID) (int64, error) {
	if bookingRef == uuid.Nil {
		return 0, errors.Wrap(domain.ErrValidation, "booking ref required")
	}
	n, err := m.store.CancelBooking(ctx, resourceID, bookingRef)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.BookingsCancelledTotal.Inc()
		m.logger.WithField("booking_ref", bookingRef.String()).
			WithField("days", n).Info("booking cancelled")
	}
	return n, nil
}

func validateDates(dates []time.Time) error {
	if len(dates) == 0 {
		return errors.Wrap(domain.ErrValidation, "at least one date required")
	}
	return nil
}

func normalizeDates(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		k := DateOnly(d)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// bookingEvents builds the confirm-time timeline writes: the reservation
// pair spanning check-in on the first night to checkout the morning
// after the last night, and the maintenance pair covering checkout plus
// the property's buffer hours.
func bookingEvents(prop *domain.Property, loc *time.Location, resourceID uuid.UUID, days []time.Time, holder, bookingRef uuid.UUID) ([]domain.AvailabilityEvent, error) {
	checkIn, err := atTimeOfDay(days[0], prop.CheckInTime, loc)
	if err != nil {
		return nil, err
	}
	checkoutDay := days[len(days)-1].AddDate(0, 0, 1)
	w, err := MaintenanceWindow(checkoutDay, prop.CheckOutTime, prop.BufferHours, checkIn, loc)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"buffer_hours": strconv.Itoa(prop.BufferHours)}
	mk := func(t time.Time, typ domain.EventType) domain.AvailabilityEvent {
		return domain.AvailabilityEvent{
			ID:         uuid.New(),
			ResourceID: resourceID,
			Time:       t,
			Type:       typ,
			BookingRef: bookingRef,
			ActorRef:   holder,
			Metadata:   meta,
		}
	}
	return []domain.AvailabilityEvent{
		mk(checkIn, domain.EventReservationStart),
		mk(w.CheckoutAt, domain.EventReservationEnd),
		mk(w.CheckoutAt, domain.EventMaintenanceStart),
		mk(w.MaintenanceEnd, domain.EventMaintenanceEnd),
	}, nil
}

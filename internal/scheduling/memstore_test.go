package scheduling_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

// memStore implements scheduling.Store in memory with a mutex standing
// in for the database's atomic conditional updates.
type memStore struct {
	mu     sync.Mutex
	days   map[string]*domain.AvailabilityDay
	events []domain.AvailabilityEvent
}

func newMemStore() *memStore {
	return &memStore{days: make(map[string]*domain.AvailabilityDay)}
}

func dayKey(resourceID uuid.UUID, date time.Time) string {
	return resourceID.String() + "|" + date.Format("2006-01-02")
}

func (s *memStore) putDay(d domain.AvailabilityDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Date = scheduling.DateOnly(d.Date)
	s.days[dayKey(d.ResourceID, d.Date)] = &d
}

func (s *memStore) day(resourceID uuid.UUID, date time.Time) domain.AvailabilityDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.days[dayKey(resourceID, scheduling.DateOnly(date))]
}

func (s *memStore) GetDay(ctx context.Context, resourceID uuid.UUID, date time.Time) (*domain.AvailabilityDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[dayKey(resourceID, date)]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "day")
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetDays(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AvailabilityDay
	for _, d := range s.days {
		if d.ResourceID == resourceID && !d.Date.Before(from) && d.Date.Before(to) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memStore) AcquireDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID, heldAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[dayKey(resourceID, date)]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "day not explicitly available")
	}
	switch {
	case d.Status == domain.StatusAvailable:
		d.Status = domain.StatusOnHold
		d.HeldBy = &holder
		d.HeldAt = &heldAt
		return nil
	case d.Status == domain.StatusOnHold && d.HeldBy != nil && *d.HeldBy == holder:
		// idempotent, held_at untouched
		return nil
	default:
		return errors.Wrapf(domain.ErrStateConflict, "day is %s", d.Status)
	}
}

func (s *memStore) ConfirmBooking(ctx context.Context, upd scheduling.ConfirmUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// validate every date before mutating anything: all-or-nothing
	for _, date := range upd.Dates {
		d, ok := s.days[dayKey(upd.ResourceID, date)]
		if !ok {
			return errors.Wrap(domain.ErrNotFound, "day")
		}
		if d.Status != domain.StatusOnHold || d.HeldBy == nil || *d.HeldBy != upd.Holder {
			return errors.Wrapf(domain.ErrStateConflict, "day is %s", d.Status)
		}
		if !d.HeldAt.After(upd.FreshAfter) {
			return errors.Wrap(domain.ErrExpiredHold, "hold expired")
		}
	}
	for _, date := range upd.Dates {
		d := s.days[dayKey(upd.ResourceID, date)]
		d.Status = domain.StatusBooked
		ref := upd.BookingRef
		at := upd.BookedAt
		d.BookingRef = &ref
		d.BookedAt = &at
		d.HeldBy = nil
		d.HeldAt = nil
	}
	s.events = append(s.events, upd.Events...)
	return nil
}

func (s *memStore) ReleaseDay(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[dayKey(resourceID, date)]
	if !ok || d.Status != domain.StatusOnHold || d.HeldBy == nil || *d.HeldBy != holder {
		return false, nil
	}
	d.Status = domain.StatusAvailable
	d.HeldBy = nil
	d.HeldAt = nil
	return true, nil
}

func (s *memStore) CancelBooking(ctx context.Context, resourceID, bookingRef uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.days {
		if d.ResourceID == resourceID && d.Status == domain.StatusBooked && d.BookingRef != nil && *d.BookingRef == bookingRef {
			d.Status = domain.StatusAvailable
			d.BookingRef = nil
			d.BookedAt = nil
			n++
		}
	}
	kept := s.events[:0]
	for _, ev := range s.events {
		if ev.ResourceID == resourceID && ev.BookingRef == bookingRef {
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}

func (s *memStore) ExpireHolds(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.days {
		if d.Status == domain.StatusOnHold && d.HeldAt != nil && d.HeldAt.Before(cutoff) {
			d.Status = domain.StatusAvailable
			d.HeldBy = nil
			d.HeldAt = nil
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetEvents(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]domain.AvailabilityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AvailabilityEvent
	for _, ev := range s.events {
		if ev.ResourceID != resourceID {
			continue
		}
		if !from.IsZero() && ev.Time.Before(from) {
			continue
		}
		if !ev.Time.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *memStore) addEvent(resourceID uuid.UUID, typ domain.EventType, ref uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, domain.AvailabilityEvent{ID: uuid.New(), ResourceID: resourceID, Time: at, Type: typ, BookingRef: ref, ActorRef: uuid.New()})
}

func (s *memStore) addEventPair(resourceID uuid.UUID, root string, ref uuid.UUID, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events,
		domain.AvailabilityEvent{ID: uuid.New(), ResourceID: resourceID, Time: start, Type: domain.EventType(root + "_start"), BookingRef: ref, ActorRef: uuid.New()},
		domain.AvailabilityEvent{ID: uuid.New(), ResourceID: resourceID, Time: end, Type: domain.EventType(root + "_end"), BookingRef: ref, ActorRef: uuid.New()},
	)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCatalog serves one property for every id.
type fakeCatalog struct {
	prop domain.Property
}

func (c *fakeCatalog) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	p := c.prop
	p.ID = id
	p.Normalize()
	return &p, nil
}

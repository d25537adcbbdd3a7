package scheduling_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

const testTTL = 3 * time.Minute

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openDays(store *memStore, resourceID uuid.UUID, dates ...time.Time) {
	for _, d := range dates {
		store.putDay(domain.AvailabilityDay{ResourceID: resourceID, Date: d, Status: domain.StatusAvailable})
	}
}

func newManager(store *memStore, clock scheduling.Clock) *scheduling.HoldManager {
	catalog := &fakeCatalog{prop: domain.Property{Timezone: "UTC"}}
	return scheduling.NewHoldManager(store, catalog, clock, testTTL, observability.NopLogger())
}

func TestAcquireHold_Succeeds(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder := uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10), day(2026, 4, 11)}
	openDays(store, res, dates...)

	held, err := m.AcquireHold(context.Background(), res, dates, holder)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 2 {
		t.Fatalf("held %d dates, want 2", len(held))
	}
	d := store.day(res, dates[0])
	if d.Status != domain.StatusOnHold || d.HeldBy == nil || *d.HeldBy != holder {
		t.Errorf("day not held by holder: %+v", d)
	}
}

func TestAcquireHold_IdempotentSameHolder(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder := uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	first := store.day(res, dates[0])

	clock.Advance(time.Minute)
	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatalf("re-acquire by same holder should succeed: %v", err)
	}
	second := store.day(res, dates[0])
	if !second.HeldAt.Equal(*first.HeldAt) {
		t.Error("re-acquire must not refresh held_at (hold extension)")
	}
}

func TestAcquireHold_PartialFailureKeepsAcquiredDates(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder, other := uuid.New(), uuid.New(), uuid.New()
	good, contested := day(2026, 4, 10), day(2026, 4, 11)
	openDays(store, res, good)
	heldAt := clock.Now()
	store.putDay(domain.AvailabilityDay{ResourceID: res, Date: contested, Status: domain.StatusOnHold, HeldBy: &other, HeldAt: &heldAt})

	held, err := m.AcquireHold(context.Background(), res, []time.Time{good, contested}, holder)
	var partial *domain.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("want PartialFailureError, got %v", err)
	}
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Error("partial failure should unwrap to the conflict sentinel")
	}
	if len(held) != 1 || !held[0].Equal(good) {
		t.Errorf("held = %v, want only %v", held, good)
	}
	// the acquired date stays held so the caller can compensate
	if store.day(res, good).Status != domain.StatusOnHold {
		t.Error("successfully acquired date should remain on hold")
	}
}

func TestAcquireHold_MutualExclusion(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res := uuid.New()
	d := day(2026, 4, 10)
	openDays(store, res, d)

	holders := []uuid.UUID{uuid.New(), uuid.New()}
	results := make([]error, len(holders))
	var wg sync.WaitGroup
	for i, h := range holders {
		wg.Add(1)
		go func(i int, h uuid.UUID) {
			defer wg.Done()
			_, results[i] = m.AcquireHold(context.Background(), res, []time.Time{d}, h)
		}(i, h)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one concurrent acquire must win, got %d", wins)
	}
}

func TestConfirmHold_WrongHolderConflicts(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder, intruder := uuid.New(), uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	err := m.ConfirmHold(context.Background(), res, dates, intruder, uuid.New())
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("want ErrStateConflict for wrong holder, got %v", err)
	}

	if err := m.ConfirmHold(context.Background(), res, dates, holder, uuid.New()); err != nil {
		t.Fatalf("rightful holder within TTL must confirm: %v", err)
	}
	if store.day(res, dates[0]).Status != domain.StatusBooked {
		t.Error("day should be booked after confirm")
	}
}

func TestConfirmHold_ExpiredEvenWithoutSweep(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder := uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	// past the TTL, no sweep has run: the time-based predicate alone
	// must reject the confirm
	clock.Advance(testTTL + time.Minute)

	err := m.ConfirmHold(context.Background(), res, dates, holder, uuid.New())
	if !errors.Is(err, domain.ErrExpiredHold) {
		t.Fatalf("want ErrExpiredHold, got %v", err)
	}
	if store.day(res, dates[0]).Status != domain.StatusOnHold {
		t.Error("failed confirm must not mutate the day")
	}
}

func TestConfirmHold_WritesEventPairs(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder, ref := uuid.New(), uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10), day(2026, 4, 11)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	if err := m.ConfirmHold(context.Background(), res, dates, holder, ref); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetEvents(context.Background(), res, time.Time{}, day(2026, 5, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want reservation + maintenance pairs", len(events))
	}
	ivs := scheduling.BuildIntervals(events)
	var resIv, maintIv *scheduling.Interval
	for i := range ivs {
		switch ivs[i].Root {
		case "reservation":
			resIv = &ivs[i]
		case "maintenance":
			maintIv = &ivs[i]
		}
	}
	if resIv == nil || maintIv == nil {
		t.Fatal("missing reservation or maintenance interval")
	}
	// checkout the morning after the last night, default 11:00 + 2h buffer
	wantCheckout := time.Date(2026, 4, 12, 11, 0, 0, 0, time.UTC)
	if !resIv.End.Equal(wantCheckout) {
		t.Errorf("reservation end = %v, want %v", resIv.End, wantCheckout)
	}
	if !maintIv.Start.Equal(wantCheckout) || !maintIv.End.Equal(wantCheckout.Add(2*time.Hour)) {
		t.Errorf("maintenance window = [%v, %v), want checkout + 2h", maintIv.Start, maintIv.End)
	}
}

func TestReleaseHold_Idempotent(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder := uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10), day(2026, 4, 11)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	n, err := m.ReleaseHold(context.Background(), res, dates, holder)
	if err != nil || n != 2 {
		t.Fatalf("release = (%d, %v), want (2, nil)", n, err)
	}
	// releasing again is a no-op with zero affected records
	n, err = m.ReleaseHold(context.Background(), res, dates, holder)
	if err != nil || n != 0 {
		t.Fatalf("second release = (%d, %v), want (0, nil)", n, err)
	}
}

func TestReleaseHold_SkipsOtherHolders(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder, other := uuid.New(), uuid.New(), uuid.New()
	d := day(2026, 4, 10)
	heldAt := clock.Now()
	store.putDay(domain.AvailabilityDay{ResourceID: res, Date: d, Status: domain.StatusOnHold, HeldBy: &other, HeldAt: &heldAt})

	n, err := m.ReleaseHold(context.Background(), res, []time.Time{d}, holder)
	if err != nil || n != 0 {
		t.Fatalf("release = (%d, %v), want (0, nil)", n, err)
	}
	if store.day(res, d).Status != domain.StatusOnHold {
		t.Error("another party's hold must survive")
	}
}

func TestCancelBooking_RoundTrip(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	m := newManager(store, clock)

	res, holder, ref := uuid.New(), uuid.New(), uuid.New()
	dates := []time.Time{day(2026, 4, 10)}
	openDays(store, res, dates...)

	if _, err := m.AcquireHold(context.Background(), res, dates, holder); err != nil {
		t.Fatal(err)
	}
	if err := m.ConfirmHold(context.Background(), res, dates, holder, ref); err != nil {
		t.Fatal(err)
	}

	n, err := m.CancelBooking(context.Background(), res, ref)
	if err != nil || n != 1 {
		t.Fatalf("cancel = (%d, %v), want (1, nil)", n, err)
	}

	d := store.day(res, dates[0])
	if d.Status != domain.StatusAvailable || d.HeldBy != nil || d.HeldAt != nil || d.BookingRef != nil || d.BookedAt != nil {
		t.Errorf("round trip must leave a clean available day: %+v", d)
	}
	events, _ := store.GetEvents(context.Background(), res, time.Time{}, day(2026, 5, 1))
	if len(events) != 0 {
		t.Errorf("cancel must remove the booking's event pairs, %d left", len(events))
	}

	// cancelling again is a no-op
	n, err = m.CancelBooking(context.Background(), res, ref)
	if err != nil || n != 0 {
		t.Fatalf("second cancel = (%d, %v), want (0, nil)", n, err)
	}
}

func TestHoldManager_ValidatesInput(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(time.Now())
	m := newManager(store, clock)

	if _, err := m.AcquireHold(context.Background(), uuid.New(), nil, uuid.New()); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty dates: want ErrValidation, got %v", err)
	}
	if err := m.ConfirmHold(context.Background(), uuid.New(), []time.Time{day(2026, 4, 10)}, uuid.New(), uuid.Nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("nil booking ref: want ErrValidation, got %v", err)
	}
	if _, err := m.CancelBooking(context.Background(), uuid.New(), uuid.Nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("nil booking ref: want ErrValidation, got %v", err)
	}
}

package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/observability"
)

// CheckRequest asks whether [Start, End) is bookable on a resource.
// Holder is optional; when set, the requester's own fresh holds are not
// counted as conflicts (used by the booking flow pre-check).
type CheckRequest struct {
	ResourceID uuid.UUID
	Start      time.Time
	End        time.Time
	Holder     *uuid.UUID
}

type Conflict struct {
	Date           time.Time  `json:"date"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	AvailableAfter *time.Time `json:"available_after,omitempty"`
}

type CheckResult struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
	// EarliestCheckIn is set when the window is bookable only because a
	// pending checkout's turnover buffer ends before the requested start.
	// Check-in must not precede it.
	EarliestCheckIn *time.Time `json:"earliest_check_in,omitempty"`
}

// Checker answers slot availability by consulting both representations:
// the day grid as the coarse index and the event timeline as the precise
// oracle. Neither alone is sufficient; the grid cannot express sub-day
// precision and the timeline is too costly for calendar-wide scans.
type Checker struct {
	store   Store
	catalog PropertyCatalog
	clock   Clock
	ttl     time.Duration
	logger  observability.Logger
}

func NewChecker(store Store, catalog PropertyCatalog, clock Clock, ttl time.Duration, logger observability.Logger) *Checker {
	return &Checker{store: store, catalog: catalog, clock: clock, ttl: ttl, logger: logger}
}

func (c *Checker) CheckSlot(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	started := time.Now()
	defer func() {
		observability.CheckSlotDuration.Observe(time.Since(started).Seconds())
	}()

	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return nil, errors.Wrap(domain.ErrValidation, "requested end must be after start")
	}

	prop, err := c.catalog.GetProperty(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	prop.Normalize()
	loc, err := prop.Location()
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	dates := spanDates(req.Start, req.End, loc)

	var (
		days   []domain.AvailabilityDay
		events []domain.AvailabilityEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		days, err = c.store.GetDays(gctx, req.ResourceID, dates[0], dates[len(dates)-1].AddDate(0, 0, 1))
		return err
	})
	g.Go(func() error {
		var err error
		// The whole timeline up to the window end: an unmatched start
		// from any point in the past is open-ended and still conflicts.
		events, err = c.store.GetEvents(gctx, req.ResourceID, time.Time{}, req.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]*domain.AvailabilityDay, len(days))
	for i := range days {
		byDate[DateOnly(days[i].Date)] = &days[i]
	}
	intervals := BuildIntervals(events)

	res := &CheckResult{}
	timeOfDay := req.Start.In(loc).Format("15:04")
	maintReported := make(map[time.Time]bool)

	for _, date := range dates {
		rec, ok := byDate[date]
		if !ok {
			res.Conflicts = append(res.Conflicts, Conflict{
				Date:   date,
				Status: "missing",
				Reason: "not explicitly available",
			})
			continue
		}

		switch rec.Status {
		case domain.StatusBooked, domain.StatusBlocked, domain.StatusUnavailable:
			if rec.Status == domain.StatusBooked {
				if w, ok := checkoutWindow(intervals, date, loc, prop.BufferHours, now); ok {
					if !req.Start.Before(w.MaintenanceEnd) {
						// Prior booking's checkout day and the buffer has
						// elapsed relative to the requested start.
						if w.Verdict != BufferInert {
							e := w.MaintenanceEnd
							res.EarliestCheckIn = &e
						}
						continue
					}
					after := w.MaintenanceEnd
					maintReported[date] = true
					res.Conflicts = append(res.Conflicts, Conflict{
						Date:           date,
						Status:         string(domain.StatusMaintenance),
						Reason:         fmt.Sprintf("turnover buffer until %s", after.Format(time.RFC3339)),
						AvailableAfter: &after,
					})
					continue
				}
			}
			reason := rec.Reason
			if reason == "" {
				reason = "day is " + string(rec.Status)
			}
			res.Conflicts = append(res.Conflicts, Conflict{Date: date, Status: string(rec.Status), Reason: reason})

		case domain.StatusOnHold:
			if req.Holder != nil && rec.HeldSameHolder(*req.Holder) && !rec.HoldExpired(now, c.ttl) {
				continue
			}
			res.Conflicts = append(res.Conflicts, Conflict{Date: date, Status: string(domain.StatusOnHold), Reason: "held by another party"})

		case domain.StatusAvailable, domain.StatusPartiallyAvailable:
			// Unavailable and on-hold windows take precedence over
			// available windows.
			if domain.AnyContains(rec.UnavailableHours, timeOfDay) || domain.AnyContains(rec.OnHoldHours, timeOfDay) {
				res.Conflicts = append(res.Conflicts, Conflict{Date: date, Status: string(rec.Status), Reason: fmt.Sprintf("time %s falls in a blocked window", timeOfDay)})
				continue
			}
			if len(rec.AvailableHours) > 0 && !domain.AnyContains(rec.AvailableHours, timeOfDay) {
				res.Conflicts = append(res.Conflicts, Conflict{Date: date, Status: string(rec.Status), Reason: fmt.Sprintf("time %s outside available windows", timeOfDay)})
			}

		default:
			res.Conflicts = append(res.Conflicts, Conflict{Date: date, Status: string(rec.Status), Reason: "unknown day status"})
		}
	}

	// Independent of the grid, scan the timeline for half-open overlap.
	// Maintenance pairs carry their own turnover-buffer semantics: they
	// block any request starting before the buffer end, expose
	// AvailableAfter, and inform EarliestCheckIn on a pending checkout
	// that the request clears.
	for _, iv := range intervals {
		if iv.Root == "maintenance" {
			date := localDate(iv.Start, loc)
			if maintReported[date] {
				continue
			}
			if iv.Overlaps(req.Start, req.End) {
				after := iv.End
				res.Conflicts = append(res.Conflicts, Conflict{
					Date:           date,
					Status:         string(domain.StatusMaintenance),
					Reason:         fmt.Sprintf("turnover buffer until %s", after.Format(time.RFC3339)),
					AvailableAfter: &after,
				})
			} else if !req.Start.Before(iv.End) && now.Before(iv.End) {
				e := iv.End
				res.EarliestCheckIn = &e
			}
			continue
		}
		if iv.Overlaps(req.Start, req.End) {
			res.Conflicts = append(res.Conflicts, Conflict{
				Date:   localDate(iv.Start, loc),
				Status: iv.Root,
				Reason: "overlapping " + iv.Root + " on timeline",
			})
		}
	}

	res.Available = len(res.Conflicts) == 0
	outcome := "available"
	if !res.Available {
		outcome = "conflict"
	}
	observability.SlotChecksTotal.WithLabelValues(outcome).Inc()
	return res, nil
}

// checkoutWindow finds the turnover window anchored on the given local
// date: the maintenance pair written at confirm time when present, else
// a reservation end on that date plus the property buffer.
func checkoutWindow(intervals []Interval, date time.Time, loc *time.Location, bufferHours int, now time.Time) (BufferWindow, bool) {
	for _, iv := range intervals {
		if iv.Root != "maintenance" || iv.Open {
			continue
		}
		if localDate(iv.Start, loc) != date {
			continue
		}
		w := BufferWindow{CheckoutAt: iv.Start, MaintenanceEnd: iv.End}
		switch {
		case !now.Before(w.MaintenanceEnd):
			w.Verdict = BufferInert
		case !now.Before(w.CheckoutAt):
			w.Verdict = BufferActive
		default:
			w.Verdict = BufferPending
		}
		return w, true
	}
	for _, iv := range intervals {
		if iv.Root != "reservation" || iv.Open {
			continue
		}
		if localDate(iv.End, loc) != date {
			continue
		}
		w, err := MaintenanceWindow(date, iv.End.In(loc).Format("15:04"), bufferHours, now, loc)
		if err != nil {
			continue
		}
		return w, true
	}
	return BufferWindow{}, false
}

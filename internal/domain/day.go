package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type DayStatus string

const (
	StatusAvailable          DayStatus = "available"
	StatusOnHold             DayStatus = "on_hold"
	StatusBooked             DayStatus = "booked"
	StatusBlocked            DayStatus = "blocked"
	StatusUnavailable        DayStatus = "unavailable"
	StatusPartiallyAvailable DayStatus = "partially_available"

	// StatusMaintenance is derived from checkout time + buffer at query
	// time. It is never written to the day grid.
	StatusMaintenance DayStatus = "maintenance"
)

// HourRange is a half-open [Start, End) window within a single local day,
// both ends formatted as zero-padded "HH:MM". Zero-padding makes plain
// string comparison equivalent to chronological comparison.
type HourRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func NewHourRange(start, end string) (HourRange, error) {
	for _, v := range []string{start, end} {
		if _, err := time.Parse("15:04", v); err != nil {
			return HourRange{}, errors.Wrapf(ErrValidation, "bad time of day %q", v)
		}
	}
	if end <= start {
		return HourRange{}, errors.Wrapf(ErrValidation, "hour range end %q not after start %q", end, start)
	}
	return HourRange{Start: start, End: end}, nil
}

func (r HourRange) Contains(timeOfDay string) bool {
	return timeOfDay >= r.Start && timeOfDay < r.End
}

func AnyContains(ranges []HourRange, timeOfDay string) bool {
	for _, r := range ranges {
		if r.Contains(timeOfDay) {
			return true
		}
	}
	return false
}

// AvailabilityDay is the per-(resource, calendar day) status record, the
// coarse fast-path index for search and calendar rendering. Date is local
// midnight in the resource's timezone. Days are opt-in: a missing record
// means the day is not bookable.
type AvailabilityDay struct {
	ResourceID uuid.UUID
	Date       time.Time
	Status     DayStatus
	Reason     string

	// Sub-day windows. Unavailable and on-hold windows take precedence
	// over available windows.
	AvailableHours   []HourRange
	UnavailableHours []HourRange
	OnHoldHours      []HourRange

	// Set only while Status == StatusOnHold.
	HeldBy *uuid.UUID
	HeldAt *time.Time

	// Set only while Status == StatusBooked.
	BookingRef *uuid.UUID
	BookedAt   *time.Time
}

// HeldSameHolder reports whether the day carries a hold owned by holder.
func (d *AvailabilityDay) HeldSameHolder(holder uuid.UUID) bool {
	return d.Status == StatusOnHold && d.HeldBy != nil && *d.HeldBy == holder
}

// HoldExpired reports whether the day's hold is older than ttl at now.
// False when the day carries no hold at all.
func (d *AvailabilityDay) HoldExpired(now time.Time, ttl time.Duration) bool {
	if d.Status != StatusOnHold || d.HeldAt == nil {
		return false
	}
	return d.HeldAt.Add(ttl).Before(now) || d.HeldAt.Add(ttl).Equal(now)
}

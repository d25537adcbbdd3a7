package scheduling

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bookgrid/availability-engine/internal/domain"
)

// DateOnly normalizes t to its calendar date, midnight UTC. Day records
// are keyed by date only; the resource timezone is applied when a date
// has to become an instant again.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// localDate is DateOnly of t observed in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// atTimeOfDay builds the instant "date at HH:MM in loc". All day-boundary
// and buffer math goes through here so local and UTC arithmetic never mix
// in one computation.
func atTimeOfDay(date time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, errors.Wrapf(domain.ErrValidation, "bad time of day %q", timeOfDay)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

// spanDates lists the local calendar dates covered by [start, end).
func spanDates(start, end time.Time, loc *time.Location) []time.Time {
	var dates []time.Time
	ls := start.In(loc)
	y, m, d := ls.Date()
	cur := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for cur.Before(end) {
		dates = append(dates, DateOnly(cur))
		cur = cur.AddDate(0, 0, 1)
	}
	return dates
}

package scheduling

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bookgrid/availability-engine/internal/domain"
)

// Interval is one reconstructed [Start, End) occupation on the timeline.
// Open intervals have no end event yet and occupy everything past Start.
type Interval struct {
	Root       string
	BookingRef uuid.UUID
	Start      time.Time
	End        time.Time
	Open       bool
}

// Overlaps is the half-open overlap test: s < end AND e > start. An open
// interval conflicts with anything that ends after its start.
func (iv Interval) Overlaps(start, end time.Time) bool {
	if iv.Open {
		return iv.Start.Before(end)
	}
	return iv.Start.Before(end) && iv.End.After(start)
}

// BuildIntervals replays events ordered by time, matching each *_end to
// the most recent unmatched *_start with the same root and booking ref.
// Unmatched starts come back as open intervals; an end with no start is
// dropped as corrupt rather than invented.
func BuildIntervals(events []domain.AvailabilityEvent) []Interval {
	sorted := make([]domain.AvailabilityEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	type key struct {
		root string
		ref  uuid.UUID
	}
	open := make(map[key][]Interval)
	var closed []Interval

	for _, ev := range sorted {
		k := key{root: ev.Type.Root(), ref: ev.BookingRef}
		if ev.Type.IsStart() {
			open[k] = append(open[k], Interval{
				Root:       k.root,
				BookingRef: ev.BookingRef,
				Start:      ev.Time,
				Open:       true,
			})
			continue
		}
		stack := open[k]
		if len(stack) == 0 {
			continue
		}
		iv := stack[len(stack)-1]
		open[k] = stack[:len(stack)-1]
		iv.End = ev.Time
		iv.Open = false
		closed = append(closed, iv)
	}

	for _, stack := range open {
		closed = append(closed, stack...)
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].Start.Before(closed[j].Start) })
	return closed
}

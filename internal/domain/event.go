package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationStart EventType = "reservation_start"
	EventReservationEnd   EventType = "reservation_end"
	EventMaintenanceStart EventType = "maintenance_start"
	EventMaintenanceEnd   EventType = "maintenance_end"
	EventBlockStart       EventType = "block_start"
	EventBlockEnd         EventType = "block_end"
)

func (t EventType) IsStart() bool {
	switch t {
	case EventReservationStart, EventMaintenanceStart, EventBlockStart:
		return true
	}
	return false
}

// Root strips the _start/_end suffix: "reservation", "maintenance" or
// "block". Start/end pairing matches on (Root, BookingRef).
func (t EventType) Root() string {
	s := string(t)
	if len(s) > 6 && s[len(s)-6:] == "_start" {
		return s[:len(s)-6]
	}
	if len(s) > 4 && s[len(s)-4:] == "_end" {
		return s[:len(s)-4]
	}
	return s
}

// AvailabilityEvent is an append-only timeline entry. Events are written
// in start/end pairs when a hold is confirmed and deleted in pairs when
// the booking is cancelled; they are never mutated in place.
type AvailabilityEvent struct {
	ID         uuid.UUID
	ResourceID uuid.UUID
	Time       time.Time
	Type       EventType
	BookingRef uuid.UUID
	ActorRef   uuid.UUID
	Metadata   map[string]string
}

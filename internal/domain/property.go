package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	DefaultCheckInTime  = "15:00"
	DefaultCheckOutTime = "11:00"
	DefaultBufferHours  = 2

	MinBufferHours = 1
	MaxBufferHours = 12
)

// Property is the slice of the property collaborator this subsystem
// consumes: where day boundaries fall and how long the post-checkout
// turnover buffer is. Everything else about a property lives elsewhere.
type Property struct {
	ID           uuid.UUID
	Timezone     string
	CheckInTime  string
	CheckOutTime string
	BufferHours  int
}

// Normalize fills absent fields with defaults and clamps BufferHours to
// the 1..12 bound.
func (p *Property) Normalize() {
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.CheckInTime == "" {
		p.CheckInTime = DefaultCheckInTime
	}
	if p.CheckOutTime == "" {
		p.CheckOutTime = DefaultCheckOutTime
	}
	if p.BufferHours == 0 {
		p.BufferHours = DefaultBufferHours
	}
	if p.BufferHours < MinBufferHours {
		p.BufferHours = MinBufferHours
	}
	if p.BufferHours > MaxBufferHours {
		p.BufferHours = MaxBufferHours
	}
}

func (p *Property) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, errors.Wrapf(ErrValidation, "unknown timezone %q", p.Timezone)
	}
	return loc, nil
}

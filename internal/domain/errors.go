package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrExpiredHold   = errors.New("hold expired")
)

// DateFailure records why a single date of a multi-date operation failed.
type DateFailure struct {
	Date time.Time
	Err  error
}

// PartialFailureError reports a multi-date operation that succeeded for
// some dates and failed for others. There is no cross-date atomicity:
// the caller owns compensation (typically releasing the succeeded dates).
type PartialFailureError struct {
	Op        string
	Succeeded []time.Time
	Failed    []DateFailure
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d dates succeeded, %d failed", e.Op, len(e.Succeeded), len(e.Failed))
}

// Unwrap exposes the first per-date cause so errors.Is sees the
// underlying conflict/expiry sentinel.
func (e *PartialFailureError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}

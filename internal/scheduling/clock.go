package scheduling

import "time"

// Clock is injected everywhere the engine reads wall time so TTL expiry
// and buffer windows can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// Package clock provides the appliance's monotonic microsecond timebase.
// All event and packet timestamps come from here (or, for GPIO edges,
// from the kernel's copy of the same clock), so they can be compared
// directly.
package clock

import (
	"sync"
	"time"

	"sumpwatch/internal/event"
)

// Clock yields monotonic microsecond timestamps.
type Clock interface {
	Now() event.Micros
}

// Mono is the real clock.
type Mono struct{}

var (
	baseOnce sync.Once
	base     time.Time
)

// sinceStart is the portable fallback: microseconds since the first call,
// measured on Go's monotonic reading of time.Time.
func sinceStart() event.Micros {
	baseOnce.Do(func() { base = time.Now() })
	return event.Micros(time.Since(base).Microseconds())
}

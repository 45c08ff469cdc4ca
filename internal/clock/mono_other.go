//go:build !linux

package clock

import "sumpwatch/internal/event"

// Now returns microseconds since the first call. Without the Linux GPIO
// stack there are no kernel edge stamps to line up with, so any steady
// monotonic reference will do.
func (Mono) Now() event.Micros {
	return sinceStart()
}

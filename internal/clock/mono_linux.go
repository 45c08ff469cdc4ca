//go:build linux

package clock

import (
	"golang.org/x/sys/unix"

	"sumpwatch/internal/event"
)

// Now reads CLOCK_MONOTONIC. The GPIO character device stamps edge events
// from the same clock, so stamps produced here line up with edge stamps.
func (Mono) Now() event.Micros {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return sinceStart()
	}
	return event.Micros(uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000)
}

// Package gpio abstracts the float-switch input lines. The real
// implementation sits on the Linux GPIO character device; the fake allows
// the rest of the appliance to be tested without hardware.
//
// The switches are wired active-low: a line reads low while its pump runs
// and is pulled high while the pump is idle.
package gpio

import "sumpwatch/internal/event"

// Default chip and BCM offsets for the two float-switch inputs.
const (
	DefaultChip         = "gpiochip0"
	DefaultPinPrimary   = 17
	DefaultPinSecondary = 27
)

// edgeBacklog bounds raw transition notifications queued for the monitor.
// A bouncing switch can raise edges faster than the settle window drains
// them; extras are dropped because the monitor re-reads the level anyway.
const edgeBacklog = 16

// Edge is one raw level transition, before any debouncing. Stamp is the
// kernel's monotonic timestamp of the transition itself, not of its
// delivery to userspace.
type Edge struct {
	Stamp  event.Micros
	Rising bool
}

// Line is a single binary input.
//
// Edges delivers raw transition notifications. The channel is buffered
// and lossy under bounce bursts; consumers must re-read Value after a
// settle period rather than trust the edge sequence. The real
// implementation never closes the channel; fakes close it to simulate the
// line going away.
type Line interface {
	// Value returns the current level: 0 for low, 1 for high.
	Value() (int, error)

	// Edges returns the transition notification channel.
	Edges() <-chan Edge

	// Close releases the line.
	Close() error
}

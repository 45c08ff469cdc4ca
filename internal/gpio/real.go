//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"sumpwatch/internal/event"
)

// RealLine is a float-switch input on actual hardware, via the Linux GPIO
// character device.
type RealLine struct {
	chip  *gpiocdev.Chip
	line  *gpiocdev.Line
	edges chan Edge
}

// RequestLine opens offset on the named chip as a pulled-up input with
// edge detection on both edges. The kernel stamps each edge on the
// monotonic clock at interrupt time, so debounce delays in userspace do
// not skew event timestamps.
func RequestLine(chipName string, offset int) (*RealLine, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealLine{
		chip:  chip,
		edges: make(chan Edge, edgeBacklog),
	}

	// Pull-up: the switch shorts the line to ground while the pump runs.
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.handleEvent))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pin %d: %w", offset, err)
	}
	r.line = line

	return r, nil
}

// handleEvent runs on the gpiocdev event goroutine and must not block.
func (r *RealLine) handleEvent(evt gpiocdev.LineEvent) {
	e := Edge{
		Stamp:  event.Micros(evt.Timestamp.Microseconds()),
		Rising: evt.Type == gpiocdev.LineEventRisingEdge,
	}
	select {
	case r.edges <- e:
	default:
		// Bounce burst outran the consumer. The level re-read after the
		// settle window makes the lost notification irrelevant.
	}
}

// Value returns the current raw level of the line.
func (r *RealLine) Value() (int, error) {
	v, err := r.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin: %w", err)
	}
	return v, nil
}

// Edges returns the transition notification channel.
func (r *RealLine) Edges() <-chan Edge {
	return r.edges
}

// Close releases the line and chip. The pin is reconfigured to input with
// pull-down first, matching Pi boot defaults, so a restart does not find
// the pin in an unexpected state.
func (r *RealLine) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

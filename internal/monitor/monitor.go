// Package monitor turns raw float-switch edges into debounced pump
// events. One monitor watches one line; the appliance runs two.
package monitor

import (
	"context"
	"fmt"
	"time"

	"sumpwatch/internal/event"
	"sumpwatch/internal/gpio"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
)

// DefaultSettle is how long a level change must persist before it is
// believed. 30ms rides out the worst observed float-switch bounce while
// staying far below the shortest real pump cycle.
const DefaultSettle = 30 * time.Millisecond

// Monitor debounces one input line and publishes confirmed transitions.
//
// The published timestamp is the kernel stamp of the edge that started
// the settle window, so debouncing delays publication but never shifts
// the recorded instant of the transition.
type Monitor struct {
	pump   event.Pump
	line   gpio.Line
	bus    *event.Bus
	log    *logger.Logger
	settle time.Duration
}

// New returns a monitor for pump on line. Non-positive settle means
// DefaultSettle.
func New(pump event.Pump, line gpio.Line, bus *event.Bus, log *logger.Logger, settle time.Duration) *Monitor {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Monitor{
		pump:   pump,
		line:   line,
		bus:    bus,
		log:    log,
		settle: settle,
	}
}

// Run watches the line until ctx is canceled or the line fails. The
// first confirmed transition after startup is published like any other;
// the level at startup itself is not, because nobody can say when it was
// established.
func (m *Monitor) Run(ctx context.Context) error {
	confirmed, err := m.line.Value()
	if err != nil {
		return fmt.Errorf("%s: initial level: %w", m.pump, err)
	}
	m.log.Infow("pump monitor started", "pump", m.pump, "level", confirmed, "settle", m.settle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case edge, ok := <-m.line.Edges():
			if !ok {
				return fmt.Errorf("%s: edge source closed", m.pump)
			}
			if err := sleepCtx(ctx, m.settle); err != nil {
				return err
			}
			level, err := m.line.Value()
			if err != nil {
				return fmt.Errorf("%s: re-sample: %w", m.pump, err)
			}
			if level == confirmed {
				// Bounce: the line was back at its confirmed level by
				// the end of the settle window.
				metrics.IncBounceFiltered(m.pump.String())
				continue
			}
			confirmed = level
			ev := m.publish(level, edge.Stamp)
			m.log.Infow("pump transition", "pump", m.pump, "event", ev, "stamp_us", uint64(edge.Stamp))
		}
	}
}

// publish maps the settled level to an event. The switch is active-low:
// low means the pump is running.
func (m *Monitor) publish(level int, stamp event.Micros) event.Event {
	var ev event.Event
	var state event.State
	if level == 0 {
		ev = event.PumpOn{Pump: m.pump, Stamp: stamp}
		state = event.StateOn
	} else {
		ev = event.PumpOff{Pump: m.pump, Stamp: stamp}
		state = event.StateOff
	}
	m.bus.Publish(ev)
	metrics.IncPumpTransition(m.pump.String(), state.String())
	return ev
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package event defines the messages exchanged between the appliance's
// tasks and the broadcast bus that carries them. Every task owns its
// private state and learns about the world only through these events.
package event

import (
	"fmt"
	"net/netip"
)

// Micros is a timestamp in microseconds on the monotonic clock. It is not
// wall time: values are only meaningful relative to each other within one
// run of the appliance. Pump events carry the instant of the physical
// edge, not the instant the debounced event was published.
type Micros uint64

// Pump identifies which float switch an event concerns. Primary is the
// main pump, Secondary the backup that runs when the primary cannot keep
// up.
type Pump int

const (
	Primary Pump = iota
	Secondary
)

func (p Pump) String() string {
	switch p {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("pump(%d)", int(p))
	}
}

// State is the settled state of one pump. Consumers start at StateUnknown
// and stay there until the first transition is observed; there is no way
// to ask the hardware for history.
type State int

const (
	StateUnknown State = iota
	StateOn
	StateOff
)

func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	case StateUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PumpState is one consumer's latest knowledge of a single pump: what it
// is doing and when the underlying edge happened.
type PumpState struct {
	State State
	Stamp Micros
}

// Known reports whether at least one transition has been observed.
func (ps PumpState) Known() bool { return ps.State != StateUnknown }

// PumpStates caches the last seen state of both pumps. Each consumer
// keeps its own copy and feeds it from its own bus subscription; there is
// no shared authoritative table.
type PumpStates struct {
	Primary   PumpState
	Secondary PumpState
}

// Apply folds ev into the cache. It reports whether ev was a pump
// transition; all other event kinds leave the cache untouched.
func (c *PumpStates) Apply(ev Event) bool {
	switch ev := ev.(type) {
	case PumpOn:
		c.set(ev.Pump, PumpState{State: StateOn, Stamp: ev.Stamp})
	case PumpOff:
		c.set(ev.Pump, PumpState{State: StateOff, Stamp: ev.Stamp})
	default:
		return false
	}
	return true
}

func (c *PumpStates) set(p Pump, ps PumpState) {
	switch p {
	case Primary:
		c.Primary = ps
	case Secondary:
		c.Secondary = ps
	}
}

// Get returns the cached state for p.
func (c PumpStates) Get(p Pump) PumpState {
	if p == Secondary {
		return c.Secondary
	}
	return c.Primary
}

// LinkState describes the uplink network interface. The zero value means
// the link has not been observed yet.
type LinkState int

const (
	LinkUnknown LinkState = iota
	LinkDown
	LinkConfiguring
	LinkUp
)

func (l LinkState) String() string {
	switch l {
	case LinkUnknown:
		return "unknown"
	case LinkDown:
		return "down"
	case LinkConfiguring:
		return "configuring"
	case LinkUp:
		return "up"
	default:
		return fmt.Sprintf("link(%d)", int(l))
	}
}

// Event is the closed set of messages carried by the bus.
//
// PumpOn and PumpOff are debounced float-switch transitions stamped at the
// physical edge. ClientConnected and ClientDisconnected describe the
// single reporting client; ClientDisconnected is also published once at
// startup so late subscribers still learn that nobody is connected.
// LinkChanged tracks the uplink interface.
type Event interface {
	isEvent()
}

// PumpOn reports that a pump started running.
type PumpOn struct {
	Pump  Pump
	Stamp Micros
}

// PumpOff reports that a pump stopped running.
type PumpOff struct {
	Pump  Pump
	Stamp Micros
}

// ClientConnected reports that the reporting client attached.
type ClientConnected struct {
	Addr netip.Addr
}

// ClientDisconnected reports that no reporting client is attached.
type ClientDisconnected struct{}

// LinkChanged reports a transition of the uplink interface.
type LinkChanged struct {
	State LinkState
}

func (PumpOn) isEvent()             {}
func (PumpOff) isEvent()            {}
func (ClientConnected) isEvent()    {}
func (ClientDisconnected) isEvent() {}
func (LinkChanged) isEvent()        {}

func (e PumpOn) String() string  { return fmt.Sprintf("%s on @%dus", e.Pump, uint64(e.Stamp)) }
func (e PumpOff) String() string { return fmt.Sprintf("%s off @%dus", e.Pump, uint64(e.Stamp)) }
func (e ClientConnected) String() string {
	return fmt.Sprintf("client connected from %s", e.Addr)
}
func (ClientDisconnected) String() string { return "client disconnected" }
func (e LinkChanged) String() string      { return fmt.Sprintf("link %s", e.State) }

// Package status tracks a point-in-time view of the appliance for the
// HTTP surfaces. The tracker is one more independent bus consumer; it
// holds its own state and never blocks the publishers.
package status

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
)

// Config contains appliance configuration for display.
type Config struct {
	ServiceAddr string
	HTTPAddr    string
	Broker      string
	Iface       string
	SettleMs    int64
	BusDepth    int
}

// Counts tallies events seen by the status consumer since startup.
type Counts struct {
	PrimaryOn    uint64
	PrimaryOff   uint64
	SecondaryOn  uint64
	SecondaryOff uint64
	Connects     uint64
	Dropped      uint64 // events this consumer lost to bus overruns
}

// Snapshot is a point-in-time view of appliance state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pumps         event.PumpStates
	Link          event.LinkState
	Client        bool
	ClientAddr    netip.Addr
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the appliance started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Running describes which pumps are currently on, for human eyes.
func (s Snapshot) Running() string {
	pri := s.Pumps.Primary.State == event.StateOn
	sec := s.Pumps.Secondary.State == event.StateOn
	switch {
	case pri && sec:
		return "both pumps"
	case pri:
		return "primary pump"
	case sec:
		return "secondary pump"
	default:
		return "none"
	}
}

// Tracker holds mutable appliance state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Apply folds one bus event into the tracked state.
func (t *Tracker) Apply(ev event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := ev.(type) {
	case event.PumpOn:
		t.snap.Pumps.Apply(ev)
		if ev.Pump == event.Primary {
			t.snap.Counts.PrimaryOn++
		} else {
			t.snap.Counts.SecondaryOn++
		}
	case event.PumpOff:
		t.snap.Pumps.Apply(ev)
		if ev.Pump == event.Primary {
			t.snap.Counts.PrimaryOff++
		} else {
			t.snap.Counts.SecondaryOff++
		}
	case event.ClientConnected:
		t.snap.Client = true
		t.snap.ClientAddr = ev.Addr
		t.snap.Counts.Connects++
	case event.ClientDisconnected:
		t.snap.Client = false
		t.snap.ClientAddr = netip.Addr{}
	case event.LinkChanged:
		t.snap.Link = ev.State
	}
}

// NoteDropped records events this consumer lost to a bus overrun.
func (t *Tracker) NoteDropped(n uint64) {
	t.mu.Lock()
	t.snap.Counts.Dropped += n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the appliance state. The Now
// field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// Watch feeds the tracker from sub until ctx is canceled. Lag just means
// the display skipped some history; the tracker notes how much and moves
// on.
func Watch(ctx context.Context, sub *event.Subscription, t *Tracker, log *logger.Logger) error {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lag *event.LagError
			if errors.As(err, &lag) {
				t.NoteDropped(lag.Missed)
				metrics.AddBusDropped("status", lag.Missed)
				log.Warnw("status consumer lagged", "missed", lag.Missed)
				continue
			}
			return err
		}
		t.Apply(ev)
	}
}

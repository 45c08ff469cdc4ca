// Package mqtt mirrors pump activity onto a home-automation broker.
//
// Two topics are used. TopicEvents carries one message per debounced pump
// transition. TopicStatus carries a retained appliance summary, so a
// dashboard sees current state immediately after subscribing; a last-will
// registration flips that summary to offline if the appliance drops without
// a clean disconnect.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"sumpwatch/internal/event"
)

// TopicEvents is the MQTT topic for pump transitions.
const TopicEvents = "home/sump/events"

// TopicStatus is the MQTT topic for the retained appliance summary.
const TopicStatus = "home/sump/status"

// clientID identifies this appliance to the broker.
const clientID = "sumpwatch"

// offlinePayload is the retained last-will message. It is a minimal static
// shape because the broker stores it at connect time, long before any
// disconnect happens.
const offlinePayload = `{"status":{"online":false}}`

// Publisher mirrors appliance activity to a broker.
type Publisher interface {
	// PublishTransition sends one pump transition to TopicEvents.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(ev event.Event) error

	// PublishStatus replaces the retained summary on TopicStatus.
	PublishStatus(st Status) error

	// IsConnected reports whether the broker link is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Status is the appliance summary mirrored to TopicStatus.
type Status struct {
	Timestamp time.Time
	Online    bool
	Pumps     event.PumpStates
	Client    bool
	Link      event.LinkState
}

// TransitionPayload represents the MQTT message payload for pump transitions.
type TransitionPayload struct {
	Sump SumpPayload `json:"sump"`
}

// SumpPayload contains the transition details.
type SumpPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Pump      string `json:"pump"`
	State     string `json:"state"`
	StampUs   uint64 `json:"stamp_us"`
}

// StatusPayload represents the MQTT message payload for the retained summary.
type StatusPayload struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the summary details. Pump and link states render as
// UNKNOWN until the first observation.
type StatusInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Online    bool   `json:"online"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Client    bool   `json:"client"`
	Link      string `json:"link"`
}

// FormatTransition creates the JSON payload for a pump transition. observed
// is the wall-clock time the transition was forwarded; the monotonic edge
// stamp rides along as stamp_us. The second return is false when ev is not
// a pump transition.
func FormatTransition(ev event.Event, observed time.Time) ([]byte, bool) {
	var (
		pump  event.Pump
		state event.State
		stamp event.Micros
	)
	switch ev := ev.(type) {
	case event.PumpOn:
		pump, state, stamp = ev.Pump, event.StateOn, ev.Stamp
	case event.PumpOff:
		pump, state, stamp = ev.Pump, event.StateOff, ev.Stamp
	default:
		return nil, false
	}

	payload := TransitionPayload{
		Sump: SumpPayload{
			Timestamp: observed.UTC().Format(time.RFC3339),
			Event:     strings.ToUpper(pump.String() + "_" + state.String()),
			Pump:      strings.ToUpper(pump.String()),
			State:     strings.ToUpper(state.String()),
			StampUs:   uint64(stamp),
		},
	}
	data, _ := json.Marshal(payload)
	return data, true
}

// FormatStatus creates the JSON payload for the retained summary.
func FormatStatus(st Status) []byte {
	inner := StatusInner{
		Online:    st.Online,
		Primary:   strings.ToUpper(st.Pumps.Primary.State.String()),
		Secondary: strings.ToUpper(st.Pumps.Secondary.State.String()),
		Client:    st.Client,
		Link:      strings.ToUpper(st.Link.String()),
	}
	if !st.Timestamp.IsZero() {
		inner.Timestamp = st.Timestamp.UTC().Format(time.RFC3339)
	}
	data, _ := json.Marshal(StatusPayload{Status: inner})
	return data
}

package mqtt

import (
	"sync"

	"sumpwatch/internal/event"
)

// FakePublisher records published messages for test assertions. Safe for
// concurrent use, since tests drive it from a republisher goroutine while
// asserting from the test goroutine.
type FakePublisher struct {
	mu            sync.Mutex
	transitions   []event.Event
	statuses      []Status
	transitionErr error
	statusErr     error
	connected     bool
	closed        bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{connected: true}
}

// PublishTransition records the pump transition.
func (f *FakePublisher) PublishTransition(ev event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, ev)
	return nil
}

// PublishStatus records the summary.
func (f *FakePublisher) PublishStatus(st Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, st)
	return nil
}

// IsConnected reports the value set with SetConnected (true by default).
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// SetTransitionErr makes PublishTransition fail with err.
func (f *FakePublisher) SetTransitionErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitionErr = err
}

// SetStatusErr makes PublishStatus fail with err.
func (f *FakePublisher) SetStatusErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErr = err
}

// Transitions returns a copy of the recorded pump transitions.
func (f *FakePublisher) Transitions() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.Event, len(f.transitions))
	copy(out, f.transitions)
	return out
}

// Statuses returns a copy of the recorded summaries.
func (f *FakePublisher) Statuses() []Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Status, len(f.statuses))
	copy(out, f.statuses)
	return out
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = nil
	f.statuses = nil
	f.transitionErr = nil
	f.statusErr = nil
	f.connected = true
	f.closed = false
}

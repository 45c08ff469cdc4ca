package event

import (
	"context"
	"fmt"
	"sync"
)

// DefaultDepth is the per-subscriber backlog. Eight slots rides out a
// burst of switch chatter plus connection churn without letting a stalled
// consumer pin memory.
const DefaultDepth = 8

// LagError is returned by Subscription.Next when the subscriber fell
// behind and the bus overwrote events it had not read yet. It is reported
// once per overrun gap; the next call resumes with the oldest event still
// buffered.
type LagError struct {
	// Missed counts events lost in this gap.
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, %d event(s) overwritten", e.Missed)
}

// Bus is a broadcast channel with bounded memory. Publishing never
// blocks: every subscription gets its own fixed ring, and a subscriber
// that cannot keep up loses its oldest unread events rather than slowing
// the publisher or the other subscribers down.
type Bus struct {
	mu    sync.Mutex
	depth int
	subs  []*Subscription
}

// NewBus returns a bus whose subscriptions buffer depth events each.
// Non-positive depth means DefaultDepth.
func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{depth: depth}
}

// Subscribe registers a new independent cursor. The subscription sees
// only events published after this call.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		ring:  make([]Event, b.depth),
		ready: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Publish delivers ev to all current subscriptions. It never blocks and
// never fails; slow subscribers overwrite their own oldest backlog.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()
	for _, s := range subs {
		s.push(ev)
	}
}

// Subscription is one consumer's view of the bus. It is safe for a
// single consumer goroutine; the bus pushes into it from publishers.
type Subscription struct {
	mu     sync.Mutex
	ring   []Event
	head   int // next write slot; oldest unread slot when full
	count  int
	missed uint64

	ready chan struct{} // capacity 1, collapsed wakeup
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.count == len(s.ring) {
		s.ring[s.head] = ev
		s.head = (s.head + 1) % len(s.ring)
		s.missed++
	} else {
		s.ring[s.head] = ev
		s.head = (s.head + 1) % len(s.ring)
		s.count++
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() Event {
	idx := (s.head - s.count + len(s.ring)) % len(s.ring)
	ev := s.ring[idx]
	s.ring[idx] = nil
	s.count--
	return ev
}

// Next blocks until an event is available or ctx is done. If the
// subscriber lagged, the first call after the overrun returns a *LagError
// carrying the miss count; the following call returns the oldest event
// still buffered.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if s.missed > 0 {
			n := s.missed
			s.missed = 0
			remaining := s.count > 0
			s.mu.Unlock()
			if remaining {
				s.wake()
			}
			return nil, &LagError{Missed: n}
		}
		if s.count > 0 {
			ev := s.pop()
			remaining := s.count > 0
			s.mu.Unlock()
			if remaining {
				s.wake()
			}
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pending returns how many events are buffered and how many were lost to
// overruns since the last Next call that reported them.
func (s *Subscription) Pending() (buffered int, missed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.missed
}

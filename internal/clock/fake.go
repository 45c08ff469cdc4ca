package clock

import (
	"sync"

	"sumpwatch/internal/event"
)

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now event.Micros
}

// NewFake returns a fake clock starting at start.
func NewFake(start event.Micros) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() event.Micros {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by us microseconds.
func (f *Fake) Advance(us uint64) {
	f.mu.Lock()
	f.now += event.Micros(us)
	f.mu.Unlock()
}

// Set jumps the clock to now.
func (f *Fake) Set(now event.Micros) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

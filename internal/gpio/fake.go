package gpio

import (
	"errors"
	"sync"

	"sumpwatch/internal/event"
)

// FakeLine is a scripted input line for tests. Unlike the hardware it is
// driven from a test goroutine while a monitor goroutine reads it, so all
// state is behind a mutex.
type FakeLine struct {
	mu       sync.Mutex
	level    int
	valueErr error
	closed   bool
	edges    chan Edge
}

// NewFakeLine returns a fake line resting at level.
func NewFakeLine(level int) *FakeLine {
	return &FakeLine{
		level: level,
		edges: make(chan Edge, edgeBacklog),
	}
}

// Value returns the current scripted level.
func (f *FakeLine) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.valueErr != nil {
		return 0, f.valueErr
	}
	return f.level, nil
}

// Edges returns the scripted edge channel.
func (f *FakeLine) Edges() <-chan Edge {
	return f.edges
}

// Close closes the edge channel; a blocked consumer sees the line die.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	close(f.edges)
	return nil
}

// Closed reports whether Close was called.
func (f *FakeLine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Transition moves the line to level and raises the matching edge, as a
// clean physical transition would.
func (f *FakeLine) Transition(level int, stamp event.Micros) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
	f.edges <- Edge{Stamp: stamp, Rising: level == 1}
}

// SetLevel changes the level without raising an edge.
func (f *FakeLine) SetLevel(level int) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

// InjectEdge raises an edge without touching the level, like a noise
// spike that has already died away by the time anyone re-reads the line.
func (f *FakeLine) InjectEdge(stamp event.Micros, rising bool) {
	f.edges <- Edge{Stamp: stamp, Rising: rising}
}

// SetValueError makes subsequent Value calls fail with err.
func (f *FakeLine) SetValueError(err error) {
	f.mu.Lock()
	f.valueErr = err
	f.mu.Unlock()
}

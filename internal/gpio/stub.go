//go:build !linux

package gpio

import "errors"

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// RequestLine returns an error on non-Linux platforms.
func RequestLine(chipName string, offset int) (*RealLine, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Value is not implemented on non-Linux platforms.
func (r *RealLine) Value() (int, error) {
	return 0, errors.New("gpio: not supported")
}

// Edges is not implemented on non-Linux platforms.
func (r *RealLine) Edges() <-chan Edge {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (r *RealLine) Close() error {
	return nil
}

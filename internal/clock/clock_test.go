package clock

import (
	"testing"
	"time"
)

func TestMonoAdvances(t *testing.T) {
	var c Mono
	a := c.Now()
	time.Sleep(5 * time.Millisecond)
	b := c.Now()

	if b <= a {
		t.Fatalf("clock went backwards: %d then %d", a, b)
	}
	// 5ms sleep should register at least 4000us and well under a second.
	if d := uint64(b - a); d < 4_000 || d > 1_000_000 {
		t.Errorf("5ms sleep measured as %dus", d)
	}
}

func TestFake(t *testing.T) {
	f := NewFake(1000)
	if f.Now() != 1000 {
		t.Fatalf("Now = %d", f.Now())
	}
	f.Advance(250)
	if f.Now() != 1250 {
		t.Fatalf("after Advance, Now = %d", f.Now())
	}
	f.Set(99)
	if f.Now() != 99 {
		t.Fatalf("after Set, Now = %d", f.Now())
	}
}

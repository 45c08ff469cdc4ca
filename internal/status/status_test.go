package status

import (
	"context"
	"encoding/json"
	"net/netip"
	"sync"
	"testing"
	"time"

	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{ServiceAddr: ":10000", HTTPAddr: ":8080", SettleMs: 30, BusDepth: 8}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.ServiceAddr != ":10000" {
		t.Errorf("Config.ServiceAddr: got %q", snap.Config.ServiceAddr)
	}
	if snap.Pumps.Primary.Known() || snap.Pumps.Secondary.Known() {
		t.Error("expected both pumps unknown initially")
	}
	if snap.Client {
		t.Error("expected Client=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestTrackerApply(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Apply(event.PumpOn{Pump: event.Primary, Stamp: 100})
	tr.Apply(event.PumpOff{Pump: event.Primary, Stamp: 200})
	tr.Apply(event.PumpOn{Pump: event.Secondary, Stamp: 300})
	tr.Apply(event.ClientConnected{Addr: netip.MustParseAddr("10.0.0.9")})
	tr.Apply(event.LinkChanged{State: event.LinkUp})

	snap := tr.Snapshot()
	if snap.Pumps.Primary.State != event.StateOff || snap.Pumps.Primary.Stamp != 200 {
		t.Errorf("primary = %+v", snap.Pumps.Primary)
	}
	if snap.Pumps.Secondary.State != event.StateOn {
		t.Errorf("secondary = %+v", snap.Pumps.Secondary)
	}
	if !snap.Client || snap.ClientAddr != netip.MustParseAddr("10.0.0.9") {
		t.Errorf("client = %v addr = %v", snap.Client, snap.ClientAddr)
	}
	if snap.Link != event.LinkUp {
		t.Errorf("link = %v", snap.Link)
	}
	if snap.Counts.PrimaryOn != 1 || snap.Counts.PrimaryOff != 1 || snap.Counts.SecondaryOn != 1 {
		t.Errorf("counts = %+v", snap.Counts)
	}
	if snap.Counts.Connects != 1 {
		t.Errorf("connects = %d", snap.Counts.Connects)
	}

	tr.Apply(event.ClientDisconnected{})
	snap = tr.Snapshot()
	if snap.Client || snap.ClientAddr.IsValid() {
		t.Errorf("after disconnect: client=%v addr=%v", snap.Client, snap.ClientAddr)
	}
}

func TestTrackerNoteDropped(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.NoteDropped(3)
	tr.NoteDropped(2)
	if got := tr.Snapshot().Counts.Dropped; got != 5 {
		t.Errorf("dropped = %d, want 5", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Apply(event.PumpOn{Pump: event.Primary, Stamp: 1})

	snap1 := tr.Snapshot()
	tr.Apply(event.PumpOff{Pump: event.Primary, Stamp: 2})

	// snap1 should still reflect the old state
	if snap1.Pumps.Primary.State != event.StateOn {
		t.Error("snapshot should be a copy; primary state was modified")
	}
}

func TestSnapshotRunning(t *testing.T) {
	cases := []struct {
		pri, sec event.State
		want     string
	}{
		{event.StateUnknown, event.StateUnknown, "none"},
		{event.StateOn, event.StateOff, "primary pump"},
		{event.StateOff, event.StateOn, "secondary pump"},
		{event.StateOn, event.StateOn, "both pumps"},
		{event.StateOff, event.StateOff, "none"},
	}
	for _, c := range cases {
		s := Snapshot{Pumps: event.PumpStates{
			Primary:   event.PumpState{State: c.pri},
			Secondary: event.PumpState{State: c.sec},
		}}
		if got := s.Running(); got != c.want {
			t.Errorf("running(%v,%v) = %q, want %q", c.pri, c.sec, got, c.want)
		}
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Apply(event.PumpOn{Pump: event.Primary, Stamp: event.Micros(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.PrimaryOn; got != 400 {
		t.Errorf("PrimaryOn = %d, want 400", got)
	}
}

func TestWatchFeedsTracker(t *testing.T) {
	bus := event.NewBus(event.DefaultDepth)
	sub := bus.Subscribe()
	tr := NewTracker(time.Now(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, sub, tr, logger.Nop())
	}()

	bus.Publish(event.PumpOn{Pump: event.Secondary, Stamp: 42})
	bus.Publish(event.LinkChanged{State: event.LinkConfiguring})

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := tr.Snapshot()
		if snap.Pumps.Secondary.State == event.StateOn && snap.Link == event.LinkConfiguring {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tracker never converged: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatchCountsLag(t *testing.T) {
	bus := event.NewBus(2)
	sub := bus.Subscribe()
	tr := NewTracker(time.Now(), Config{})

	// Overrun the depth-2 ring before the watcher starts reading.
	for i := 0; i < 5; i++ {
		bus.Publish(event.PumpOn{Pump: event.Primary, Stamp: event.Micros(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, sub, tr, logger.Nop())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if tr.Snapshot().Counts.Dropped == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dropped = %d, want 3", tr.Snapshot().Counts.Dropped)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{
		ServiceAddr: ":10000",
		HTTPAddr:    ":8080",
		Broker:      "tcp://broker:1883",
		SettleMs:    30,
		BusDepth:    8,
	})
	tr.Apply(event.PumpOn{Pump: event.Primary, Stamp: 123})
	tr.Apply(event.ClientConnected{Addr: netip.MustParseAddr("192.168.1.77")})
	tr.SetMQTTConnected(true)

	data := FormatJSON(tr.Snapshot(), SystemInfo{CPUPercent: 12.5, MemTotalMB: 512})

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	st := parsed.Status
	if st.Primary.State != "on" || st.Primary.StampUs != 123 {
		t.Errorf("primary = %+v", st.Primary)
	}
	if st.Secondary.State != "unknown" {
		t.Errorf("secondary = %+v", st.Secondary)
	}
	if !st.Client.Connected || st.Client.Addr != "192.168.1.77" {
		t.Errorf("client = %+v", st.Client)
	}
	if !st.MQTT.Connected || st.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt = %+v", st.MQTT)
	}
	if st.System.CPUPercent != 12.5 || st.System.MemTotalMB != 512 {
		t.Errorf("system = %+v", st.System)
	}
	if st.Config.SettleMs != 30 || st.Config.BusDepth != 8 {
		t.Errorf("config = %+v", st.Config)
	}
	if st.Running != "primary pump" {
		t.Errorf("running = %q", st.Running)
	}
}

func TestFormatJSONOmitsClientAddrWhenDisconnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	data := FormatJSON(tr.Snapshot(), SystemInfo{})

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Client.Connected || parsed.Status.Client.Addr != "" {
		t.Errorf("client = %+v", parsed.Status.Client)
	}
}

func TestReadSystemInfo(t *testing.T) {
	info := ReadSystemInfo()
	// Values are host-dependent; only check plausibility where a probe
	// worked.
	if info.MemUsedMB > info.MemTotalMB+1 {
		t.Errorf("memory sample implausible: %+v", info)
	}
	if info.CPUPercent < 0 {
		t.Errorf("cpu sample implausible: %+v", info)
	}
}

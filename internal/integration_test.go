package internal

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"sumpwatch/internal/clock"
	"sumpwatch/internal/event"
	"sumpwatch/internal/gpio"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/monitor"
	"sumpwatch/internal/mqtt"
	"sumpwatch/internal/service"
	"sumpwatch/internal/status"
	"sumpwatch/internal/wire"
)

// Timings chosen so a full test stays well under a second: switches
// settle in 5ms and keepalives arrive every 100ms.
const (
	testSettle    = 5 * time.Millisecond
	testKeepalive = 100 * time.Millisecond
)

// appliance is the whole pipeline on fake hardware: two scripted float
// switches feeding monitors, the bus, the report service on a loopback
// port, the status tracker, and a fake broker mirror.
type appliance struct {
	primary   *gpio.FakeLine
	secondary *gpio.FakeLine
	bus       *event.Bus
	svc       *service.Service
	tracker   *status.Tracker
	pub       *mqtt.FakePublisher
}

func startAppliance(t *testing.T) *appliance {
	t.Helper()

	a := &appliance{
		primary:   gpio.NewFakeLine(1),
		secondary: gpio.NewFakeLine(1),
		bus:       event.NewBus(8),
		pub:       mqtt.NewFakePublisher(),
	}
	log := logger.Nop()

	a.svc = service.New(service.Config{
		Addr:        "127.0.0.1:0",
		IdleTimeout: 2 * time.Second,
		Keepalive:   testKeepalive,
	}, a.bus, clock.Mono{}, log)
	a.tracker = status.NewTracker(time.Now(), status.Config{})
	statusSub := a.bus.Subscribe()
	mqttSub := a.bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.New(event.Primary, a.primary, a.bus, log, testSettle).Run(ctx) })
	g.Go(func() error { return monitor.New(event.Secondary, a.secondary, a.bus, log, testSettle).Run(ctx) })
	g.Go(func() error { return a.svc.Run(ctx) })
	g.Go(func() error { return status.Watch(ctx, statusSub, a.tracker, log) })
	g.Go(func() error { return mqtt.NewRepublisher(a.pub, log).Run(ctx, mqttSub) })

	t.Cleanup(func() {
		cancel()
		if err := g.Wait(); !errors.Is(err, context.Canceled) {
			t.Errorf("appliance stopped with %v, want context.Canceled", err)
		}
	})
	return a
}

// dialService connects to the report port, retrying while the service is
// between connection cycles.
func dialService(t *testing.T, svc *service.Service) net.Conn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		addr := svc.Addr()
		if !strings.HasSuffix(addr, ":0") {
			if conn, err := net.Dial("tcp", addr); err == nil {
				return conn
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("service never became dialable")
	return nil
}

// readPacket reads one report, failing the test if none arrives in time.
func readPacket(t *testing.T, conn net.Conn) wire.Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	pkt, err := wire.Read(conn)
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	return pkt
}

// readReport reads packets until one that is not a keepalive arrives.
func readReport(t *testing.T, conn net.Conn) wire.Packet {
	t.Helper()
	for i := 0; i < 50; i++ {
		if pkt := readPacket(t, conn); pkt.Type != wire.TypeKeepalive {
			return pkt
		}
	}
	t.Fatal("nothing but keepalives on the wire")
	return wire.Packet{}
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestIntegrationColdBootBurst verifies a client connecting before any
// transition gets a keepalive and nothing else: unknown pump states are
// never put on the wire.
func TestIntegrationColdBootBurst(t *testing.T) {
	a := startAppliance(t)
	conn := dialService(t, a.svc)
	defer conn.Close()

	pkt := readPacket(t, conn)
	if pkt.Type != wire.TypeKeepalive {
		t.Fatalf("first packet = %v, want keepalive", pkt.Type)
	}
	if pkt.Code != 0 {
		t.Errorf("keepalive error code = %d, want 0", pkt.Code)
	}
	if pkt := readPacket(t, conn); pkt.Type != wire.TypeKeepalive {
		t.Errorf("second packet = %v, want the first periodic keepalive", pkt.Type)
	}
}

// TestIntegrationTransitionsReachClient walks a connected client through
// both pumps starting and the primary stopping, checking each report
// carries the kernel stamp of the edge that caused it.
func TestIntegrationTransitionsReachClient(t *testing.T) {
	a := startAppliance(t)
	conn := dialService(t, a.svc)
	defer conn.Close()
	readPacket(t, conn)

	a.primary.Transition(0, 5_000)
	pkt := readReport(t, conn)
	if pkt.Type != wire.TypePrimaryOn || pkt.Stamp != 5_000 {
		t.Fatalf("got %v @%d, want primary-on @5000", pkt.Type, pkt.Stamp)
	}

	a.secondary.Transition(0, 6_000)
	pkt = readReport(t, conn)
	if pkt.Type != wire.TypeSecondaryOn || pkt.Stamp != 6_000 {
		t.Fatalf("got %v @%d, want secondary-on @6000", pkt.Type, pkt.Stamp)
	}

	a.primary.Transition(1, 7_500)
	pkt = readReport(t, conn)
	if pkt.Type != wire.TypePrimaryOff || pkt.Stamp != 7_500 {
		t.Fatalf("got %v @%d, want primary-off @7500", pkt.Type, pkt.Stamp)
	}
}

// TestIntegrationInitialBurstCarriesKnownStates has both pumps transition
// before any client connects. The service drains the bus while awaiting,
// so the burst must report the cached states with their original stamps.
func TestIntegrationInitialBurstCarriesKnownStates(t *testing.T) {
	a := startAppliance(t)

	a.primary.Transition(0, 41_000)
	a.secondary.Transition(0, 42_000)
	waitFor(t, func() bool {
		s := a.tracker.Snapshot()
		return s.Pumps.Primary.State == event.StateOn && s.Pumps.Secondary.State == event.StateOn
	}, "tracker never saw the on transitions")

	a.secondary.Transition(1, 43_000)
	waitFor(t, func() bool {
		return a.tracker.Snapshot().Pumps.Secondary.State == event.StateOff
	}, "tracker never saw the secondary stop")

	// The tracker and the service consume independently; give the
	// service's drain loop a beat to catch up too.
	time.Sleep(50 * time.Millisecond)

	conn := dialService(t, a.svc)
	defer conn.Close()

	if pkt := readPacket(t, conn); pkt.Type != wire.TypeKeepalive {
		t.Fatalf("burst[0] = %v, want keepalive", pkt.Type)
	}
	pkt := readPacket(t, conn)
	if pkt.Type != wire.TypePrimaryOn || pkt.Stamp != 41_000 {
		t.Fatalf("burst[1] = %v @%d, want primary-on @41000", pkt.Type, pkt.Stamp)
	}
	pkt = readPacket(t, conn)
	if pkt.Type != wire.TypeSecondaryOff || pkt.Stamp != 43_000 {
		t.Fatalf("burst[2] = %v @%d, want secondary-off @43000", pkt.Type, pkt.Stamp)
	}
}

// TestIntegrationSecondClientRefused checks the port is closed while a
// client is being served and reopens once that client goes away.
func TestIntegrationSecondClientRefused(t *testing.T) {
	a := startAppliance(t)
	first := dialService(t, a.svc)
	defer first.Close()
	readPacket(t, first) // burst received, so the listener is closed by now

	if conn, err := net.Dial("tcp", a.svc.Addr()); err == nil {
		conn.Close()
		t.Fatal("second client connected while the first was being served")
	}

	first.Close()
	next := dialService(t, a.svc)
	defer next.Close()
	if pkt := readPacket(t, next); pkt.Type != wire.TypeKeepalive {
		t.Errorf("reconnect burst = %v, want keepalive", pkt.Type)
	}
}

// TestIntegrationClientDataEndsConnection sends one byte upstream; the
// protocol is write-only, so the service must drop the connection.
func TestIntegrationClientDataEndsConnection(t *testing.T) {
	a := startAppliance(t)
	conn := dialService(t, a.svc)
	defer conn.Close()
	readPacket(t, conn)

	if _, err := conn.Write([]byte{0xff}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The service aborts the connection; reads fail once the reset
	// arrives, possibly after draining a queued keepalive.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var err error
	for i := 0; i < 50 && err == nil; i++ {
		_, err = wire.Read(conn)
	}
	if err == nil {
		t.Fatal("connection stayed up after the client sent data")
	}
}

// TestIntegrationTrackerFollowsClient watches the status tracker through
// a connect and disconnect.
func TestIntegrationTrackerFollowsClient(t *testing.T) {
	a := startAppliance(t)

	conn := dialService(t, a.svc)
	readPacket(t, conn)
	waitFor(t, func() bool {
		s := a.tracker.Snapshot()
		return s.Client && s.ClientAddr.IsLoopback()
	}, "tracker never saw the client connect")

	conn.Close()
	waitFor(t, func() bool { return !a.tracker.Snapshot().Client }, "tracker never saw the disconnect")

	if got := a.tracker.Snapshot().Counts.Connects; got != 1 {
		t.Errorf("connect count = %d, want 1", got)
	}
}

// TestIntegrationBrokerMirror verifies transitions and state summaries
// flow through to the broker publisher.
func TestIntegrationBrokerMirror(t *testing.T) {
	a := startAppliance(t)

	a.primary.Transition(0, 9_000)
	waitFor(t, func() bool { return len(a.pub.Transitions()) >= 1 }, "mirror never saw the transition")

	on, ok := a.pub.Transitions()[0].(event.PumpOn)
	if !ok || on.Pump != event.Primary || on.Stamp != 9_000 {
		t.Fatalf("mirror transition = %#v, want primary on @9000", a.pub.Transitions()[0])
	}

	waitFor(t, func() bool {
		sts := a.pub.Statuses()
		return len(sts) > 0 && sts[len(sts)-1].Pumps.Primary.State == event.StateOn
	}, "mirror status never reflected the pump state")
}

// TestIntegrationBounceSuppressed injects a noise edge with no settled
// level change behind it and checks nothing but keepalives reach the
// client.
func TestIntegrationBounceSuppressed(t *testing.T) {
	a := startAppliance(t)
	conn := dialService(t, a.svc)
	defer conn.Close()
	readPacket(t, conn)

	a.primary.InjectEdge(12_000, false)

	deadline := time.Now().Add(3 * testKeepalive)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		pkt, err := wire.Read(conn)
		if err != nil {
			break
		}
		if pkt.Type != wire.TypeKeepalive {
			t.Fatalf("bounce leaked to the wire as %v", pkt.Type)
		}
	}
}

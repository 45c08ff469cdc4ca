// Package service exposes pump state to a single remote client over the
// fixed binary report protocol.
//
// The service alternates between two states. While awaiting a client it
// listens on the configured port and keeps draining the event bus so its
// cached pump states stay fresh. While serving it stops listening, sends
// the cached states as an initial burst, then forwards transitions and
// periodic keepalives until the client vanishes, stalls, or sends a byte.
// The client has no business talking: anything received is a protocol
// violation and ends the connection. Either way the cycle restarts; only
// context cancellation stops the service itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"sumpwatch/internal/clock"
	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
	"sumpwatch/internal/wire"
)

const (
	DefaultAddr        = ":10000"
	DefaultIdleTimeout = 10 * time.Second
	DefaultKeepalive   = 5 * time.Second
)

// Config holds the service's tunables.
type Config struct {
	// Addr is the TCP listen address. The port is only open while no
	// client is connected; a second client is refused, not queued.
	Addr string

	// IdleTimeout bounds each report write. A client that stops
	// acknowledging is dropped within this bound.
	IdleTimeout time.Duration

	// Keepalive is both the TCP keepalive probe period and the interval
	// of protocol-level keepalive reports while a client is connected.
	Keepalive time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Keepalive <= 0 {
		c.Keepalive = DefaultKeepalive
	}
	return c
}

// Service is the single-client report server.
type Service struct {
	cfg Config
	bus *event.Bus
	sub *event.Subscription
	clk clock.Clock
	log *logger.Logger

	mu   sync.Mutex
	addr string

	// states is the service's private view of both pumps, fed only from
	// its own subscription. Touched exclusively by Run's goroutine.
	states event.PumpStates
}

// New returns a service publishing on bus and reporting on cfg.Addr. The
// bus subscription is taken here, before Run starts, so no transition
// published after New can be missed.
func New(cfg Config, bus *event.Bus, clk clock.Clock, log *logger.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:  cfg,
		bus:  bus,
		sub:  bus.Subscribe(),
		clk:  clk,
		log:  log,
		addr: cfg.Addr,
	}
}

// Addr returns the current listen address. Once the first listener is
// bound this is its concrete address, so an ephemeral port stays stable
// across connection cycles.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Service) setAddr(addr string) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
}

// busItem carries one subscription read to the state machine. Exactly one
// of ev and err is set; err is either a *event.LagError or nil.
type busItem struct {
	ev  event.Event
	err error
}

// Run drives the connect/serve cycle until ctx is canceled. Connection
// errors of every kind restart the cycle; they are never fatal.
func (s *Service) Run(ctx context.Context) error {
	items := make(chan busItem)
	go s.drain(ctx, items)

	for {
		// Entering the awaiting state. On the first pass this announces
		// the boot condition: nobody is connected.
		s.bus.Publish(event.ClientDisconnected{})

		conn, err := s.awaitClient(ctx, items)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Errorw("await client failed", "err", err)
			if err := sleepCtx(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		s.serveConn(ctx, conn, items)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// drain pumps the service's subscription into items so that both
// connection states can select on bus traffic. Lag reports travel down
// the same channel as events.
func (s *Service) drain(ctx context.Context, items chan<- busItem) {
	for {
		ev, err := s.sub.Next(ctx)
		if err != nil {
			var lag *event.LagError
			if !errors.As(err, &lag) {
				return
			}
		}
		select {
		case items <- busItem{ev: ev, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// awaitClient listens until a client connects, consuming bus traffic the
// whole time so the cached pump states are current when the client
// arrives. The listener is closed again before the connection is served:
// nothing accepts on the port while a client is being served.
func (s *Service) awaitClient(ctx context.Context, items <-chan busItem) (*net.TCPConn, error) {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	defer ln.Close()
	s.setAddr(ln.Addr().String())
	s.log.Infow("awaiting client", "addr", ln.Addr().String())

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		c, err := ln.Accept()
		accepted <- acceptResult{conn: c, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			ln.Close()
			go func() {
				if r := <-accepted; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		case r := <-accepted:
			if r.err != nil {
				return nil, fmt.Errorf("accept: %w", r.err)
			}
			return r.conn.(*net.TCPConn), nil
		case it := <-items:
			s.applyIdle(it)
		}
	}
}

// applyIdle folds bus traffic into the cache while no client is
// connected.
func (s *Service) applyIdle(it busItem) {
	if it.err != nil {
		s.noteLag(it.err)
		return
	}
	s.states.Apply(it.ev)
}

// noteLag records an overrun of the service's own subscription. The lost
// events are never resent; the protocol has no recovery packet, and the
// cache keeps its previous values until the next transition arrives.
func (s *Service) noteLag(err error) {
	var lag *event.LagError
	if errors.As(err, &lag) {
		metrics.AddBusDropped("service", lag.Missed)
		s.log.Warnw("service subscription lagged", "missed", lag.Missed)
	}
}

// serveConn owns one accepted connection from handshake to teardown.
func (s *Service) serveConn(ctx context.Context, conn *net.TCPConn, items <-chan busItem) {
	peer := peerAddr(conn)
	s.log.Infow("client connected", "peer", peer.String())
	metrics.IncClientConnect()

	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(s.cfg.Keepalive)

	defer func() {
		// Abort rather than linger. There is nothing worth flushing to a
		// peer that is gone or misbehaving, and the next client must not
		// wait behind TIME_WAIT state.
		conn.SetLinger(0)
		conn.Close()
		s.log.Infow("client disconnected", "peer", peer.String())
	}()

	s.bus.Publish(event.ClientConnected{Addr: peer})

	if err := s.sendInitial(conn); err != nil {
		s.log.Warnw("initial burst failed", "peer", peer.String(), "err", err)
		return
	}

	s.serve(ctx, conn, items)
}

func peerAddr(conn *net.TCPConn) netip.Addr {
	if a, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return a.AddrPort().Addr().Unmap()
	}
	return netip.Addr{}
}

// sendInitial sends the connection preamble: one keepalive stamped now,
// then the last known state of each pump, primary first. A pump with no
// observed transition yet is left unreported rather than guessed at.
func (s *Service) sendInitial(conn net.Conn) error {
	if err := s.send(conn, wire.Keepalive(s.clk.Now())); err != nil {
		return err
	}
	if pkt, ok := wire.ForState(event.Primary, s.states.Primary); ok {
		if err := s.send(conn, pkt); err != nil {
			return err
		}
	}
	if pkt, ok := wire.ForState(event.Secondary, s.states.Secondary); ok {
		if err := s.send(conn, pkt); err != nil {
			return err
		}
	}
	return nil
}

var errClientSpoke = errors.New("client sent data")

// serve forwards transitions and keepalives until the connection ends.
// A dedicated reader turns any inbound byte, or any read failure, into
// the end of the connection; the deferred abort in serveConn unblocks it.
func (s *Service) serve(ctx context.Context, conn *net.TCPConn, items <-chan busItem) {
	readEnd := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := conn.Read(buf)
		if err == nil {
			err = errClientSpoke
		}
		readEnd <- err
	}()

	keepalive := time.NewTicker(s.cfg.Keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readEnd:
			if errors.Is(err, errClientSpoke) {
				metrics.IncViolation()
				s.log.Warnw("client sent data, dropping connection")
			} else {
				s.log.Debugw("client connection ended", "err", err)
			}
			return
		case <-keepalive.C:
			if err := s.send(conn, wire.Keepalive(s.clk.Now())); err != nil {
				s.log.Debugw("keepalive failed", "err", err)
				return
			}
		case it := <-items:
			if it.err != nil {
				s.noteLag(it.err)
				continue
			}
			s.states.Apply(it.ev)
			pkt, ok := wire.ForEvent(it.ev)
			if !ok {
				continue
			}
			if err := s.send(conn, pkt); err != nil {
				s.log.Warnw("report write failed", "err", err)
				return
			}
		}
	}
}

// send writes one packet, bounded by the idle timeout. A short write is
// an error like any other; the connection is not reusable after one.
func (s *Service) send(conn net.Conn, pkt wire.Packet) error {
	b := pkt.Encode()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.IdleTimeout))
	n, err := conn.Write(b[:])
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		metrics.IncWriteError()
		return fmt.Errorf("send %s: %w", pkt.Type, err)
	}
	metrics.IncPacketSent(pkt.Type.String())
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

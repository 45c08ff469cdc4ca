// Package netwatch polls the uplink interface and publishes link changes.
//
// The classification is three-valued: down, configuring (administratively
// up but still waiting for a usable address, typically mid-DHCP), and up.
package netwatch

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"

	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
)

// DefaultIface is the uplink interface on the appliance image.
const DefaultIface = "wlan0"

// DefaultPoll is how often the interface is sampled.
const DefaultPoll = 3 * time.Second

// Prober reports whether iface is administratively up and the addresses
// assigned to it, in CIDR notation.
type Prober func(iface string) (up bool, addrs []string, err error)

// Watcher publishes a LinkChanged event whenever the uplink moves between
// down, configuring, and up.
type Watcher struct {
	iface string
	poll  time.Duration
	probe Prober
	bus   *event.Bus
	log   *logger.Logger
}

// New creates a watcher for iface. Empty iface and non-positive poll fall
// back to the defaults.
func New(iface string, poll time.Duration, bus *event.Bus, log *logger.Logger) *Watcher {
	if iface == "" {
		iface = DefaultIface
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Watcher{
		iface: iface,
		poll:  poll,
		probe: gopsutilProbe,
		bus:   bus,
		log:   log,
	}
}

// Run samples the interface until ctx is cancelled. The first sample is
// taken immediately, so subscribers learn the boot-time link state without
// waiting a full poll interval.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	last := event.LinkUnknown
	probeFailed := false
	for {
		up, addrs, err := w.probe(w.iface)
		if err != nil {
			if !probeFailed {
				w.log.Warnw("link probe failed", "iface", w.iface, "error", err)
				probeFailed = true
			}
		} else {
			probeFailed = false
			if state := Classify(up, addrs); state != last {
				last = state
				w.bus.Publish(event.LinkChanged{State: state})
				metrics.IncLinkChange()
				w.log.Infow("link state changed", "iface", w.iface, "state", state)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Classify derives the link state from interface facts. A down interface is
// LinkDown. An up interface with no usable address is LinkConfiguring:
// loopback and link-local addresses (including 169.254/16, which DHCP
// failure leaves behind) do not count as usable. Anything else is LinkUp.
func Classify(up bool, addrs []string) event.LinkState {
	if !up {
		return event.LinkDown
	}
	for _, a := range addrs {
		pfx, err := netip.ParsePrefix(a)
		if err != nil {
			continue
		}
		ip := pfx.Addr()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return event.LinkUp
	}
	return event.LinkConfiguring
}

func gopsutilProbe(iface string) (bool, []string, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return false, nil, fmt.Errorf("list interfaces: %w", err)
	}

	for _, st := range ifaces {
		if st.Name != iface {
			continue
		}
		up := false
		for _, f := range st.Flags {
			if f == "up" {
				up = true
				break
			}
		}
		addrs := make([]string, 0, len(st.Addrs))
		for _, a := range st.Addrs {
			addrs = append(addrs, a.Addr)
		}
		return up, addrs, nil
	}
	return false, nil, fmt.Errorf("interface %s not found", iface)
}

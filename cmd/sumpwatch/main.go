// Command sumpwatch monitors a pair of sump pump float switches and
// reports their transitions to a single TCP client, a web status page,
// and optionally an MQTT broker.
//
// The float switches are wired active low with internal pull-ups: a low
// line level means the switch has lifted and the pump is running.
//
//	sumpwatch                      run with defaults (or /etc/sumpwatch/config.yml)
//	sumpwatch -config custom.yml   run with an explicit config file
//	sumpwatch -print-state         read both switches once, print, and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sumpwatch/internal/clock"
	"sumpwatch/internal/config"
	"sumpwatch/internal/event"
	"sumpwatch/internal/gpio"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
	"sumpwatch/internal/monitor"
	"sumpwatch/internal/mqtt"
	"sumpwatch/internal/netwatch"
	"sumpwatch/internal/service"
	"sumpwatch/internal/status"
	"sumpwatch/internal/web"
)

const (
	httpShutdownTimeout = 5 * time.Second
	mqttStatusPoll      = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	printState := flag.Bool("print-state", false, "read both float switches once, print their state, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sumpwatch: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	metrics.Init()

	if err := run(cfg, log, *printState); err != nil {
		log.Fatalw("sumpwatch exited", "error", err)
	}
}

// run wires the appliance together and blocks until a fatal error or a
// shutdown signal. Split from main so tests can drive it with a canned
// config.
func run(cfg config.Config, log *logger.Logger, printState bool) error {
	primary, err := gpio.RequestLine(cfg.GPIOChip, cfg.PinPrimary)
	if err != nil {
		return fmt.Errorf("primary float switch (pin %d): %w", cfg.PinPrimary, err)
	}
	defer primary.Close()

	secondary, err := gpio.RequestLine(cfg.GPIOChip, cfg.PinSecondary)
	if err != nil {
		return fmt.Errorf("secondary float switch (pin %d): %w", cfg.PinSecondary, err)
	}
	defer secondary.Close()

	if printState {
		return printPumpState(os.Stdout, primary, secondary)
	}

	bus := event.NewBus(cfg.BusDepth)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// The report service subscribes in New; every other consumer takes
	// its subscription here, before any producer goroutine starts, so
	// nobody misses the initial switch readings.
	svc := service.New(service.Config{
		Addr:        cfg.ServiceAddr,
		IdleTimeout: cfg.IdleTimeout,
		Keepalive:   cfg.Keepalive,
	}, bus, clock.Mono{}, log)
	statusSub := bus.Subscribe()

	var pub *mqtt.RealPublisher
	var mqttSub *event.Subscription
	if cfg.Broker != "" {
		pub = mqtt.NewRealPublisher(cfg.Broker, log)
		defer pub.Close()
		mqttSub = bus.Subscribe()
	}

	srv := web.New(cfg.HTTPAddr, tracker, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.New(event.Primary, primary, bus, log, cfg.Settle).Run(ctx)
	})
	g.Go(func() error {
		return monitor.New(event.Secondary, secondary, bus, log, cfg.Settle).Run(ctx)
	})
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return status.Watch(ctx, statusSub, tracker, log) })

	if pub != nil {
		g.Go(func() error { return mqtt.NewRepublisher(pub, log).Run(ctx, mqttSub) })
		g.Go(func() error { return pollBrokerState(ctx, pub, tracker) })
	}

	if cfg.Iface != "" {
		g.Go(func() error { return netwatch.New(cfg.Iface, cfg.Poll, bus, log).Run(ctx) })
	}

	g.Go(func() error {
		log.Infow("status page listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status page: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Infow("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	log.Infow("sumpwatch started",
		"service", cfg.ServiceAddr,
		"http", cfg.HTTPAddr,
		"chip", cfg.GPIOChip,
		"primary_pin", cfg.PinPrimary,
		"secondary_pin", cfg.PinSecondary,
		"settle", cfg.Settle,
		"broker", cfg.Broker,
		"iface", cfg.Iface,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infow("stopped")
	return nil
}

// pollBrokerState keeps the tracker's broker flag fresh for the status
// page. The paho client reconnects in the background, so connectivity
// has to be sampled rather than observed through events.
func pollBrokerState(ctx context.Context, pub mqtt.Publisher, tracker *status.Tracker) error {
	ticker := time.NewTicker(mqttStatusPoll)
	defer ticker.Stop()
	for {
		tracker.SetMQTTConnected(pub.IsConnected())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printPumpState(w io.Writer, primary, secondary gpio.Line) error {
	p, err := primary.Value()
	if err != nil {
		return fmt.Errorf("read primary: %w", err)
	}
	s, err := secondary.Value()
	if err != nil {
		return fmt.Errorf("read secondary: %w", err)
	}
	fmt.Fprintf(w, "primary: %s\nsecondary: %s\n", stateLabel(p), stateLabel(s))
	return nil
}

// stateLabel maps a raw line level to a pump label. The switches are
// active low, so a low level means the pump is running.
func stateLabel(level int) string {
	if level == 0 {
		return "ON"
	}
	return "OFF"
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		ServiceAddr: cfg.ServiceAddr,
		HTTPAddr:    cfg.HTTPAddr,
		Broker:      cfg.Broker,
		Iface:       cfg.Iface,
		SettleMs:    cfg.Settle.Milliseconds(),
		BusDepth:    cfg.BusDepth,
	}
}

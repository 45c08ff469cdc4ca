package mqtt

import (
	"context"
	"errors"
	"time"

	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
)

// Republisher forwards bus traffic to a broker. Every pump transition goes
// to TopicEvents, and the retained summary on TopicStatus is refreshed
// after each event so dashboards track the appliance without decoding the
// event stream.
type Republisher struct {
	pub Publisher
	log *logger.Logger
	now func() time.Time
}

// NewRepublisher creates a republisher writing through pub.
func NewRepublisher(pub Publisher, log *logger.Logger) *Republisher {
	return &Republisher{pub: pub, log: log, now: time.Now}
}

// Run forwards events from sub until ctx is cancelled. Publish failures are
// logged and skipped: the broker mirror is best-effort and must never stall
// the monitoring core.
func (r *Republisher) Run(ctx context.Context, sub *event.Subscription) error {
	st := Status{Online: true, Timestamp: r.now()}
	r.publishStatus(st)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lag *event.LagError
			if errors.As(err, &lag) {
				metrics.AddBusDropped("mqtt", lag.Missed)
				r.log.Warnw("mqtt republisher lagging", "missed", lag.Missed)
				continue
			}
			return err
		}

		switch ev := ev.(type) {
		case event.PumpOn, event.PumpOff:
			if err := r.pub.PublishTransition(ev); err != nil {
				r.log.Warnw("publish transition", "error", err)
			}
			st.Pumps.Apply(ev)
		case event.ClientConnected:
			st.Client = true
		case event.ClientDisconnected:
			st.Client = false
		case event.LinkChanged:
			st.Link = ev.State
		}

		st.Timestamp = r.now()
		r.publishStatus(st)
	}
}

func (r *Republisher) publishStatus(st Status) {
	if err := r.pub.PublishStatus(st); err != nil {
		r.log.Warnw("publish status", "error", err)
	}
}

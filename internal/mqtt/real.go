package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"sumpwatch/internal/event"
	"sumpwatch/internal/logger"
	"sumpwatch/internal/metrics"
)

// pendingCap bounds the number of messages held while the broker link is
// down. At typical pump duty cycles this covers several hours of outage.
const pendingCap = 64

// publishTimeout bounds how long a publish may block the caller.
const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker.
//
// The constructor does not wait for the broker: paho connects and reconnects
// in the background, and messages published while the link is down are held
// in a bounded ring and replayed on reconnect. A sump appliance must keep
// monitoring whether or not the broker is reachable.
type RealPublisher struct {
	client paho.Client
	log    *logger.Logger

	mu      sync.Mutex
	pending *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker URL and starts
// connecting in the background.
func NewRealPublisher(broker string, log *logger.Logger) *RealPublisher {
	p := &RealPublisher{
		log:     log,
		pending: newRingBuffer(pendingCap),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost).
		SetWill(TopicStatus, offlinePayload, 1, true)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// PublishTransition sends a pump transition to the broker.
func (p *RealPublisher) PublishTransition(ev event.Event) error {
	payload, ok := FormatTransition(ev, time.Now())
	if !ok {
		return fmt.Errorf("not a pump transition: %T", ev)
	}

	// QoS 0 (at-most-once), not retained: the retained summary on
	// TopicStatus already carries current state.
	return p.publish(TopicEvents, 0, false, payload)
}

// PublishStatus replaces the retained summary on the broker.
func (p *RealPublisher) PublishStatus(st Status) error {
	// QoS 1 (at-least-once), retained: late subscribers must see it.
	return p.publish(TopicStatus, 1, true, FormatStatus(st))
}

// IsConnected reports whether the broker link is up right now. Unlike
// paho's Client.IsConnected, this stays false while the client is merely
// retrying in the background.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close publishes a retained offline summary and disconnects. The explicit
// publish covers clean shutdowns, where the registered will does not fire.
func (p *RealPublisher) Close() error {
	if p.client.IsConnectionOpen() {
		token := p.client.Publish(TopicStatus, 1, true, offlinePayload)
		token.WaitTimeout(publishTimeout)
	}
	p.client.Disconnect(1000) // milliseconds to flush in-flight messages
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(pendingMsg{topic: topic, qos: qos, retained: retained, payload: payload})
		metrics.IncMQTTPublished(topic, "buffered")
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.IncMQTTPublished(topic, "error")
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		metrics.IncMQTTPublished(topic, "error")
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	metrics.IncMQTTPublished(topic, "ok")
	return nil
}

func (p *RealPublisher) buffer(msg pendingMsg) {
	p.mu.Lock()
	dropped := p.pending.push(msg)
	queued := p.pending.len()
	p.mu.Unlock()

	if dropped {
		p.log.Warnw("mqtt buffer full, dropped oldest message", "capacity", pendingCap)
	}
	p.log.Debugw("mqtt message buffered while disconnected", "topic", msg.topic, "queued", queued)
}

// onConnect replays messages buffered while the link was down. Replay is
// oldest-first, so a buffered retained summary is superseded by any newer
// one in the same batch.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	msgs := p.pending.drainAll()
	p.mu.Unlock()

	p.log.Infow("mqtt connected", "buffered", len(msgs))

	for _, msg := range msgs {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			metrics.IncMQTTPublished(msg.topic, "error")
			p.log.Warnw("mqtt replay failed", "topic", msg.topic, "error", token.Error())
			continue
		}
		metrics.IncMQTTPublished(msg.topic, "ok")
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.Warnw("mqtt connection lost", "error", err)
}

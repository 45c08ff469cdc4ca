// Package metrics registers the appliance's Prometheus metrics. Init is
// called once from main; the helpers are no-ops until then so tests can
// exercise instrumented code without touching the default registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sumpwatch_"

var (
	registerOnce sync.Once

	pumpTransitions *prometheus.CounterVec
	bouncesFiltered *prometheus.CounterVec
	busDropped      *prometheus.CounterVec

	clientConnects prometheus.Counter
	violations     prometheus.Counter
	packetsSent    *prometheus.CounterVec
	writeErrors    prometheus.Counter

	mqttPublished *prometheus.CounterVec
	linkChanges   prometheus.Counter
)

// Init registers all collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		pumpTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pump_transitions_total",
				Help: "Debounced float-switch transitions by pump and state",
			},
			[]string{"pump", "state"},
		)
		bouncesFiltered = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bounces_filtered_total",
				Help: "Edges discarded because the level reverted within the settle window",
			},
			[]string{"pump"},
		)
		busDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bus_dropped_total",
				Help: "Events lost to subscriber backlog overruns, by consumer",
			},
			[]string{"consumer"},
		)

		clientConnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "client_connects_total",
				Help: "Accepted reporting-client connections",
			},
		)
		violations = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "protocol_violations_total",
				Help: "Clients dropped for sending data",
			},
		)
		packetsSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_sent_total",
				Help: "Report packets written by type",
			},
			[]string{"type"},
		)
		writeErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "write_errors_total",
				Help: "Failed or short report writes",
			},
		)

		mqttPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_published_total",
				Help: "MQTT publishes by topic and result",
			},
			[]string{"topic", "result"},
		)
		linkChanges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "link_changes_total",
				Help: "Uplink interface state transitions observed",
			},
		)

		prometheus.MustRegister(
			pumpTransitions,
			bouncesFiltered,
			busDropped,
			clientConnects,
			violations,
			packetsSent,
			writeErrors,
			mqttPublished,
			linkChanges,
		)
	})
}

// IncPumpTransition records one debounced transition.
func IncPumpTransition(pump, state string) {
	if pumpTransitions != nil {
		pumpTransitions.WithLabelValues(pump, state).Inc()
	}
}

// IncBounceFiltered records one edge discarded as bounce.
func IncBounceFiltered(pump string) {
	if bouncesFiltered != nil {
		bouncesFiltered.WithLabelValues(pump).Inc()
	}
}

// AddBusDropped records events lost by one consumer's backlog.
func AddBusDropped(consumer string, n uint64) {
	if busDropped != nil {
		busDropped.WithLabelValues(consumer).Add(float64(n))
	}
}

// IncClientConnect records one accepted client.
func IncClientConnect() {
	if clientConnects != nil {
		clientConnects.Inc()
	}
}

// IncViolation records one client dropped for speaking.
func IncViolation() {
	if violations != nil {
		violations.Inc()
	}
}

// IncPacketSent records one report packet by type name.
func IncPacketSent(typ string) {
	if packetsSent != nil {
		packetsSent.WithLabelValues(typ).Inc()
	}
}

// IncWriteError records one failed report write.
func IncWriteError() {
	if writeErrors != nil {
		writeErrors.Inc()
	}
}

// IncMQTTPublished records one publish attempt.
func IncMQTTPublished(topic, result string) {
	if mqttPublished != nil {
		mqttPublished.WithLabelValues(topic, result).Inc()
	}
}

// IncLinkChange records one uplink state transition.
func IncLinkChange() {
	if linkChanges != nil {
		linkChanges.Inc()
	}
}

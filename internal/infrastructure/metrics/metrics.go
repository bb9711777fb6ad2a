// Package metrics exposes servo bridge counters in Prometheus format.
//
// Collectors live on a private registry rather than the global default so
// tests can create as many independent instances as they need. Every
// recorder method is safe to call on a nil *Metrics, which lets components
// run without instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "servobridge"

// Metrics holds the bridge's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	telegramsReceived *prometheus.CounterVec
	telegramsRejected *prometheus.CounterVec
	telegramsDropped  prometheus.Counter
	commands          *prometheus.CounterVec
	devicesKnown      prometheus.Gauge
	mqttConnected     prometheus.Gauge
	connectAttempts   prometheus.Counter
}

// New creates a Metrics instance with Go runtime and process collectors
// registered alongside the bridge's own series.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		telegramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "telegrams_received_total",
			Help:      "Inbound device telegrams accepted for processing, by kind.",
		}, []string{"kind"}),
		telegramsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "telegrams_rejected_total",
			Help:      "Inbound telegrams discarded as malformed, by reason.",
		}, []string{"reason"}),
		telegramsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "telegrams_dropped_total",
			Help:      "Inbound telegrams dropped because the ingestion queue was full or stopped.",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "dispatched_total",
			Help:      "Operator commands by kind and outcome.",
		}, []string{"kind", "result"}),
		devicesKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "devices",
			Help:      "Number of devices in the fleet registry.",
		}),
		mqttConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 when the broker session is up, 0 otherwise.",
		}),
		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connect_attempts_total",
			Help:      "Initial broker connection attempts made by the supervisor.",
		}),
	}
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TelegramReceived counts a telegram accepted by the ingestion consumer.
func (m *Metrics) TelegramReceived(kind string) {
	if m == nil {
		return
	}
	m.telegramsReceived.WithLabelValues(kind).Inc()
}

// TelegramRejected counts a malformed telegram.
func (m *Metrics) TelegramRejected(reason string) {
	if m == nil {
		return
	}
	m.telegramsRejected.WithLabelValues(reason).Inc()
}

// TelegramDropped counts a telegram that never reached the consumer.
func (m *Metrics) TelegramDropped() {
	if m == nil {
		return
	}
	m.telegramsDropped.Inc()
}

// CommandDispatched counts an operator command outcome.
func (m *Metrics) CommandDispatched(kind, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind, result).Inc()
}

// SetDevices records the current registry size.
func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devicesKnown.Set(float64(n))
}

// SetMQTTConnected records the broker session state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.mqttConnected.Set(1)
		return
	}
	m.mqttConnected.Set(0)
}

// ConnectAttempt counts a supervisor connection attempt.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

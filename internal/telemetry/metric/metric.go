// Package metric provides Prometheus metrics for minidis.
//
// It exposes connection, command and protocol counters for monitoring
// the RESP server.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minidis"

// Metrics holds all application metrics, registered against a private
// registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionsActive is the number of currently open client connections.
	ConnectionsActive prometheus.Gauge
	// ConnectionsTotal counts accepted client connections.
	ConnectionsTotal prometheus.Counter
	// CommandsTotal counts executed commands by command name.
	CommandsTotal *prometheus.CounterVec
	// CommandDuration observes per-command execution time by command name.
	CommandDuration *prometheus.HistogramVec
	// FramesDecoded counts successfully decoded request frames.
	FramesDecoded prometheus.Counter
	// ProtocolErrors counts malformed frames that terminated a connection.
	ProtocolErrors prometheus.Counter
	// CommandErrors counts commands rejected by the parser.
	CommandErrors prometheus.Counter
}

// New creates and registers all metrics. keys reports the current key
// count of the backing store; it is exported as a gauge.
func New(keys func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of executed commands.",
		}, []string{"command"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"command"}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Total number of successfully decoded request frames.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of protocol errors that closed a connection.",
		}),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Total number of commands rejected by the parser.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.CommandsTotal,
		m.CommandDuration,
		m.FramesDecoded,
		m.ProtocolErrors,
		m.CommandErrors,
		collectors.NewGoCollector(),
	)

	if keys != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys_stored",
			Help:      "Number of keys currently stored.",
		}, func() float64 { return float64(keys()) }))
	}

	return m
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

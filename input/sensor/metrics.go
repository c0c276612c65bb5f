package sensor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dvlstreams/metric"
)

// Metrics holds Prometheus metrics for the DVL input component
type Metrics struct {
	bytesReceived   prometheus.Counter
	framesReceived  prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	reconnects      prometheus.Counter
	connectAttempts prometheus.Counter
	published       *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	pacerOverruns   prometheus.Counter
	lastReport      prometheus.Gauge
}

// newMetrics creates and registers input metrics. A nil registry disables
// metrics.
func newMetrics(registry *metric.MetricsRegistry, serviceName string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from the sensor stream",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "frames_total",
			Help:      "Newline-delimited frames extracted from the stream",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "decode_errors_total",
			Help:      "Frames skipped because they could not be decoded",
		}, []string{"kind"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "reconnects_total",
			Help:      "Sensor connections dropped and reopened",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "connect_failures_total",
			Help:      "Failed attempts to reach the sensor",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "published_total",
			Help:      "Messages handed to a sink",
		}, []string{"sink"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "publish_errors_total",
			Help:      "Sink calls that returned an error",
		}, []string{"sink"}),
		pacerOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "pacer_overruns_total",
			Help:      "Output cycles that ran longer than the publish period",
		}),
		lastReport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "dvl",
			Name:      "last_report_timestamp",
			Help:      "Unix timestamp of the last velocity report",
		}),
	}

	// Registration only fails on duplicates; the collectors still count.
	_ = registry.RegisterCounter(serviceName, "bytes_received", m.bytesReceived)
	_ = registry.RegisterCounter(serviceName, "frames", m.framesReceived)
	_ = registry.RegisterCounterVec(serviceName, "decode_errors", m.decodeErrors)
	_ = registry.RegisterCounter(serviceName, "reconnects", m.reconnects)
	_ = registry.RegisterCounter(serviceName, "connect_failures", m.connectAttempts)
	_ = registry.RegisterCounterVec(serviceName, "published", m.published)
	_ = registry.RegisterCounterVec(serviceName, "publish_errors", m.publishErrors)
	_ = registry.RegisterCounter(serviceName, "pacer_overruns", m.pacerOverruns)
	_ = registry.RegisterGauge(serviceName, "last_report", m.lastReport)

	return m
}

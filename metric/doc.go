// Package metric owns the Prometheus registry of the bridge and the HTTP
// server that exposes it.
//
// NewMetricsRegistry registers the process-level metrics (component state,
// health, NATS connection) plus the Go runtime and process collectors.
// Components register their own collectors through MetricsRegistrar, keyed by
// service and metric name:
//
//	frames := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "dvl",
//	    Name:      "frames_total",
//	    Help:      "Frames read from the sensor",
//	})
//	if err := registry.RegisterCounter("dvl-input", "frames_total", frames); err != nil {
//	    return err
//	}
//
// Registering the same service and metric twice is an invalid error.
//
// Server serves the registry on a configurable path (default /metrics) and
// the aggregate health on /health. /health answers 503 while any component is
// unhealthy.
package metric

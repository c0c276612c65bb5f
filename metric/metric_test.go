package metric

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/health"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())

	registry.Metrics.RecordNATSStatus(true)
	registry.Metrics.RecordNATSReconnect()
	registry.Metrics.RecordComponentState("dvl-input", 2)

	names := gatheredNames(t, registry)
	assert.True(t, names["dvlstreams_nats_connected"])
	assert.True(t, names["dvlstreams_nats_reconnects_total"])
	assert.True(t, names["dvlstreams_component_state"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dvl_frames_total", Help: "frames"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dvl_last_report", Help: "last"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "dvl_publish_seconds", Help: "publish"})
	cvec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dvl_decode_errors_total", Help: "errors"}, []string{"kind"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "dvl_ws_clients", Help: "clients"}, []string{"path"})

	require.NoError(t, registry.RegisterCounter("dvl-input", "frames", counter))
	require.NoError(t, registry.RegisterGauge("dvl-input", "last_report", gauge))
	require.NoError(t, registry.RegisterHistogram("dvl-input", "publish", hist))
	require.NoError(t, registry.RegisterCounterVec("dvl-input", "decode_errors", cvec))
	require.NoError(t, registry.RegisterGaugeVec("ws-hub", "clients", gvec))

	counter.Add(3)
	cvec.WithLabelValues("malformed").Inc()
	assert.InDelta(t, 3.0, testutil.ToFloat64(counter), 0.001)

	names := gatheredNames(t, registry)
	assert.True(t, names["dvl_frames_total"])
	assert.True(t, names["dvl_decode_errors_total"])
}

func TestMetricsRegistry_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dvl_frames_total", Help: "frames"})
	require.NoError(t, registry.RegisterCounter("dvl-input", "frames", first))

	// same key
	err := registry.RegisterCounter("dvl-input", "frames", first)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// different key, same prometheus name
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dvl_frames_total", Help: "frames"})
	err = registry.RegisterCounter("other", "frames", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dvl_frames_total", Help: "frames"})

	assert.False(t, registry.Unregister("dvl-input", "frames"))
	require.NoError(t, registry.RegisterCounter("dvl-input", "frames", counter))
	assert.True(t, registry.Unregister("dvl-input", "frames"))

	// can register again after removal
	require.NoError(t, registry.RegisterCounter("dvl-input", "frames", counter))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dvl_shared_total", Help: "shared"})
			errs <- registry.RegisterCounter("dvl-input", "shared", c)
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestMetrics_RecordHealth(t *testing.T) {
	m := NewMetrics()

	m.RecordHealth("dvl-input", true, false)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("dvl-input")), 0.001)

	m.RecordHealth("dvl-input", false, true)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("dvl-input")), 0.001)

	m.RecordHealth("dvl-input", false, false)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("dvl-input")), 0.001)

	m.RecordNATSRTT(1500 * time.Microsecond)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.NATSRTT), 0.001)

	m.RecordCircuitBreakerOpen(true)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.NATSCircuitBreaker), 0.001)
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.Metrics.RecordNATSStatus(true)

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("dvl-input", "streaming")

	srv := NewServer(0, "", registry, func() health.Status {
		return monitor.AggregateHealth("dvlbridge")
	})
	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "dvlstreams_nats_connected 1"))

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var status health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dvlbridge", status.Component)
	assert.True(t, status.IsHealthy())
	assert.InDelta(t, 2.0, testutil.ToFloat64(registry.Metrics.HealthCheckStatus.WithLabelValues("dvl-input")), 0.001)

	monitor.UpdateUnhealthy("dvl-input", "sensor lost")
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_DefaultHealth(t *testing.T) {
	srv := NewServer(9191, "/prom", NewMetricsRegistry(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/prom")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(0, "", nil, nil)
	err := srv.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	require.NoError(t, NewServer(0, "", NewMetricsRegistry(), nil).Stop())
}

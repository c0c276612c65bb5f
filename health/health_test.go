package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/component"
)

type stubComponent struct {
	name   string
	health component.HealthStatus
	flow   component.FlowMetrics
}

func (s *stubComponent) Meta() component.Metadata { return component.Metadata{Name: s.name, Type: "input"} }
func (s *stubComponent) InputPorts() []component.Port { return nil }
func (s *stubComponent) OutputPorts() []component.Port { return nil }
func (s *stubComponent) Health() component.HealthStatus { return s.health }
func (s *stubComponent) DataFlow() component.FlowMetrics { return s.flow }
func (s *stubComponent) Initialize() error { return nil }
func (s *stubComponent) Start(context.Context) error { return nil }
func (s *stubComponent) Stop(time.Duration) error { return nil }

func TestHelpers(t *testing.T) {
	h := NewHealthy("dvl-input", "ok")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("dvl-input", "slow")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := NewUnhealthy("dvl-input", "down")
	assert.True(t, u.IsUnhealthy())
	assert.False(t, u.Healthy)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("dvlbridge", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "dvlbridge", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotShareInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("sys", subs)
	got.SubStatuses[0].Message = "changed"
	assert.Empty(t, subs[0].Message)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("sys", "").WithSubStatus(NewHealthy("a", ""))
	left := base.WithSubStatus(NewHealthy("b", ""))
	right := base.WithSubStatus(NewHealthy("c", ""))

	require.Len(t, left.SubStatuses, 2)
	require.Len(t, right.SubStatuses, 2)
	assert.Equal(t, "b", left.SubStatuses[1].Component)
	assert.Equal(t, "c", right.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /dev/ttyUSB0", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\dvl\\config.json", "cannot read [PATH]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"sensor address", "dial 10.42.0.186:16171: no route to host", "dial [IP][PORT]: no route to host"},
		{"credentials", "auth failed with password:hunter2", "auth failed with [REDACTED]"},
		{"url and token", "get https://10.0.0.1:8080/api with token=abc123", "get [URL] with [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestFromComponentHealth(t *testing.T) {
	healthy := FromComponentHealth("dvl-input", component.HealthStatus{Healthy: true, Uptime: time.Hour})
	assert.Equal(t, StateHealthy, healthy.Status)
	assert.Equal(t, "Component healthy", healthy.Message)
	require.NotNil(t, healthy.Metrics)
	assert.Equal(t, time.Hour, healthy.Metrics.Uptime)

	failing := FromComponentHealth("dvl-input", component.HealthStatus{
		Healthy:    false,
		ErrorCount: 3,
		LastError:  "connect 10.42.0.186: connection refused",
	})
	assert.Equal(t, StateUnhealthy, failing.Status)
	assert.Equal(t, "connect [IP]: connection refused", failing.Message)
	assert.Equal(t, 3, failing.Metrics.ErrorCount)
}

func TestFromComponent_Staleness(t *testing.T) {
	c := &stubComponent{
		name:   "dvl-input",
		health: component.HealthStatus{Healthy: true},
		flow:   component.FlowMetrics{MessagesPerSecond: 10, LastActivity: time.Now().Add(-time.Minute)},
	}

	stale := FromComponent(c, 5*time.Second)
	assert.Equal(t, StateDegraded, stale.Status)
	assert.False(t, stale.Healthy)
	assert.Contains(t, stale.Message, "no data for")

	assert.Equal(t, StateHealthy, FromComponent(c, 0).Status)

	c.flow.LastActivity = time.Now()
	fresh := FromComponent(c, 5*time.Second)
	assert.Equal(t, StateHealthy, fresh.Status)
	assert.InDelta(t, 10.0, fresh.Metrics.MessagesPerSecond, 0.001)

	// never active yet: not stale
	c.flow.LastActivity = time.Time{}
	assert.Equal(t, StateHealthy, FromComponent(c, 5*time.Second).Status)

	// unhealthy stays unhealthy
	c.health.Healthy = false
	assert.Equal(t, StateUnhealthy, FromComponent(c, 5*time.Second).Status)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, 0, m.Count())

	m.Update("dvl-input", Status{Component: "wrong", Status: StateHealthy})
	got, ok := m.Get("dvl-input")
	require.True(t, ok)
	assert.Equal(t, "dvl-input", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	m.UpdateDegraded("ws-hub", "no clients")
	m.UpdateUnhealthy("nats", "disconnected")
	assert.Equal(t, 3, m.Count())
	assert.Len(t, m.GetAll(), 3)

	agg := m.AggregateHealth("dvlbridge")
	assert.Equal(t, StateUnhealthy, agg.Status)
	require.Len(t, agg.SubStatuses, 3)
	assert.Equal(t, "dvl-input", agg.SubStatuses[0].Component)
	assert.Equal(t, "nats", agg.SubStatuses[1].Component)

	m.Remove("nats")
	m.UpdateHealthy("ws-hub", "ok")
	assert.Equal(t, StateHealthy, m.AggregateHealth("dvlbridge").Status)
}

func TestMonitor_Refresh(t *testing.T) {
	m := NewMonitor()
	input := &stubComponent{name: "dvl-input", health: component.HealthStatus{Healthy: true}}
	hub := &stubComponent{name: "ws-hub", health: component.HealthStatus{Healthy: false, LastError: "listen failed"}}

	m.Refresh([]component.Discoverable{input, hub}, time.Second)

	assert.Equal(t, 2, m.Count())
	status, ok := m.Get("ws-hub")
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, "listen failed", status.Message)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch j % 4 {
				case 0:
					m.UpdateHealthy("comp", "ok")
				case 1:
					m.UpdateUnhealthy("comp", "down")
				case 2:
					_ = m.AggregateHealth("sys")
				case 3:
					m.Remove("comp")
				}
			}
		}()
	}
	wg.Wait()

	m.UpdateHealthy("final", "ok")
	_, ok := m.Get("final")
	assert.True(t, ok)
}

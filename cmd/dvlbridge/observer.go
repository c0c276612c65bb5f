package main

import (
	"context"
	"time"

	"github.com/c360/dvlstreams/component"
	"github.com/c360/dvlstreams/health"
	"github.com/c360/dvlstreams/metric"
	"github.com/c360/dvlstreams/natsclient"
)

// observer copies component and NATS state into the core metrics and the
// health monitor.
type observer struct {
	manager    *component.Manager
	nats       *natsclient.Client
	core       *metric.Metrics
	monitor    *health.Monitor
	staleAfter time.Duration
}

func (o *observer) loop(ctx context.Context) {
	ticker := time.NewTicker(observeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.observe()
		}
	}
}

func (o *observer) observe() {
	managed := o.manager.Components()
	discoverables := make([]component.Discoverable, 0, len(managed))
	for _, mc := range managed {
		o.core.RecordComponentState(mc.Component.Meta().Name, int(mc.State))
		discoverables = append(discoverables, mc.Component)
	}
	o.monitor.Refresh(discoverables, o.staleAfter)

	status := o.nats.GetStatus()
	switch status.Status {
	case natsclient.StatusConnected:
		o.monitor.UpdateHealthy("nats", "connected")
	case natsclient.StatusReconnecting, natsclient.StatusConnecting:
		o.monitor.UpdateDegraded("nats", status.Status.String())
	default:
		o.monitor.UpdateUnhealthy("nats", status.Status.String())
	}
	o.core.RecordNATSStatus(status.Status == natsclient.StatusConnected)
	o.core.RecordCircuitBreakerOpen(status.Status == natsclient.StatusCircuitOpen)
	if status.RTT > 0 {
		o.core.RecordNATSRTT(status.RTT)
	}

	for name, s := range o.monitor.GetAll() {
		o.core.RecordHealth(name, s.IsHealthy(), s.IsDegraded())
	}
}

// healthStatus refreshes and returns the aggregate status served on /health.
func (o *observer) healthStatus() health.Status {
	o.observe()
	return o.monitor.AggregateHealth(appName)
}

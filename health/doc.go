// Package health tracks component health for the bridge's /health endpoint.
//
// A Status is healthy, degraded or unhealthy. Monitor keeps the latest Status
// per component and aggregates them: any unhealthy child makes the system
// unhealthy, otherwise any degraded child makes it degraded.
//
// Refresh pulls the state straight from running components. A component that
// reports healthy but has not moved data for longer than the stale window is
// marked degraded, which is how a silent sensor shows up:
//
//	monitor := health.NewMonitor()
//	monitor.Refresh([]component.Discoverable{input, hub}, 5*time.Second)
//	status := monitor.AggregateHealth("dvlbridge")
//
// Error text copied into a Status is sanitized: URLs, paths, IP addresses,
// ports and credential pairs are replaced with placeholders.
package health

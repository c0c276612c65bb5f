// Package component defines the lifecycle and discovery contracts shared by
// the bridge's inputs and outputs, and a Manager that drives them.
//
// Every long-running part of the bridge (the DVL input, the websocket tap)
// implements LifecycleComponent:
//
//	Initialize() error                  // validate and allocate, no I/O loops
//	Start(ctx context.Context) error    // begin work; ctx bounds its lifetime
//	Stop(timeout time.Duration) error   // graceful shutdown
//
// and Discoverable, which lets the health endpoint describe what is running:
//
//	Meta() Metadata
//	InputPorts() []Port
//	OutputPorts() []Port
//	Health() HealthStatus
//	DataFlow() FlowMetrics
//
// Components never store the context passed to Start beyond the goroutines it
// spawns. The Manager creates a child context per component, starts them in
// registration order and stops them in reverse.
package component

package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/dvlstreams/errors"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent defines components that support full lifecycle management:
//   - Initialize() error                  // Setup/create only, NO context
//   - Start(ctx context.Context) error    // Start with context passed through
//   - Stop(timeout time.Duration) error   // Stop with timeout for graceful shutdown
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent tracks a component and its lifecycle state
type ManagedComponent struct {
	Component LifecycleComponent
	State     State

	// Child context handed to Start. Only the Manager keeps it, so a single
	// component can be cancelled during shutdown.
	Context context.Context
	Cancel  context.CancelFunc

	// StartOrder tracks the order components were started for reverse shutdown
	StartOrder int

	// LastError tracks the last error that occurred during lifecycle operations
	LastError error
}

// Manager initializes, starts and stops a fixed set of components.
type Manager struct {
	mu         sync.Mutex
	components []*ManagedComponent
	logger     *slog.Logger
	started    bool
}

// NewManager creates a manager. A nil logger falls back to slog.Default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "component-manager")}
}

// Add registers a component. Components start in the order they are added.
func (m *Manager) Add(c LifecycleComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Manager", "Add", "register component")
	}
	name := c.Meta().Name
	for _, mc := range m.components {
		if mc.Component.Meta().Name == name {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate component name %q", name), "Manager", "Add", "register component")
		}
	}
	m.components = append(m.components, &ManagedComponent{Component: c, State: StateCreated})
	return nil
}

// Initialize initializes every component, stopping at the first failure.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range m.components {
		name := mc.Component.Meta().Name
		if err := mc.Component.Initialize(); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			return errors.Wrap(err, "Manager", "Initialize", fmt.Sprintf("initialize %s", name))
		}
		mc.State = StateInitialized
	}
	return nil
}

// Start starts components in registration order. If one fails, the ones
// already running are stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	for i, mc := range m.components {
		meta := mc.Component.Meta()
		childCtx, cancel := context.WithCancel(ctx)
		mc.Context = childCtx
		mc.Cancel = cancel
		mc.StartOrder = i

		m.logger.Info("Starting component", "name", meta.Name, "type", meta.Type)
		if err := mc.Component.Start(childCtx); err != nil {
			cancel()
			mc.State = StateFailed
			mc.LastError = err
			m.logger.Error("Component failed to start", "name", meta.Name, "type", meta.Type, "error", err)
			m.stopLocked(m.components[:i], 5*time.Second)
			return errors.Wrap(err, "Manager", "Start", fmt.Sprintf("start %s", meta.Name))
		}
		mc.State = StateStarted
	}

	m.started = true
	return nil
}

// Stop stops all components in reverse start order, sharing one timeout.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	errs := m.stopLocked(m.components, timeout)
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d components: %v", len(errs), errs)
	}
	return nil
}

// stopLocked cancels and stops the given components from last to first.
// REQUIRES: m.mu must be held by caller
func (m *Manager) stopLocked(components []*ManagedComponent, timeout time.Duration) []error {
	deadline := time.Now().Add(timeout)
	var errs []error

	for i := len(components) - 1; i >= 0; i-- {
		mc := components[i]
		if mc.State != StateStarted {
			continue
		}
		name := mc.Component.Meta().Name

		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}

		if mc.Cancel != nil {
			mc.Cancel()
			mc.Cancel = nil
			mc.Context = nil
		}

		if err := mc.Component.Stop(remaining); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			errs = append(errs, fmt.Errorf("component '%s': %w", name, err))
			continue
		}
		mc.State = StateStopped
		m.logger.Info("Component stopped", "name", name)
	}
	return errs
}

// Components returns the registered components with their current states.
func (m *Manager) Components() []ManagedComponent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ManagedComponent, 0, len(m.components))
	for _, mc := range m.components {
		out = append(out, *mc)
	}
	return out
}

// Health returns the health of every component keyed by name.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]HealthStatus, len(m.components))
	for _, mc := range m.components {
		out[mc.Component.Meta().Name] = mc.Component.Health()
	}
	return out
}

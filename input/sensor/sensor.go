package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/dvlstreams/component"
	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/metric"
	"github.com/c360/dvlstreams/pkg/pacer"
	"github.com/c360/dvlstreams/stream"
)

// RawSink receives frames verbatim.
type RawSink interface {
	PublishRaw(ctx context.Context, frame []byte) error
}

// ReportSink receives decoded velocity reports with their header stamped.
type ReportSink interface {
	PublishReport(ctx context.Context, report *dvl.VelocityReport) error
}

// Input reads the sensor stream and forwards frames and reports to the sinks.
// One goroutine owns the connection, the carry-over buffer and every sink
// call.
type Input struct {
	name      string
	cfg       config.SensorConfig
	connector stream.Connector
	reader    *stream.FrameReader
	pacer     *pacer.Pacer
	pacerOpts []pacer.Option
	raw       RawSink
	report    ReportSink
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	// Lifecycle management
	mu        sync.RWMutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	startTime time.Time

	connected    atomic.Bool
	frames       atomic.Int64
	reports      atomic.Int64
	errors       atomic.Int64
	bytesSeen    int64        // loop goroutine only
	lastActivity atomic.Value // time.Time
	lastError    atomic.Value // string
}

var _ component.LifecycleComponent = (*Input)(nil)

// InputDeps holds runtime dependencies for the input component
type InputDeps struct {
	Name   string
	Config config.SensorConfig
	Raw    RawSink
	Report ReportSink

	// Connector overrides the transport built from Config.
	Connector       stream.Connector
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger

	// PacerOptions and Now replace the clock. Used by tests.
	PacerOptions []pacer.Option
	Now          func() time.Time
}

// NewInput creates the input component. Nothing is opened until Start.
func NewInput(deps InputDeps) *Input {
	name := deps.Name
	if name == "" {
		name = "dvl-input"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	in := &Input{
		name:      name,
		cfg:       deps.Config,
		connector: deps.Connector,
		pacerOpts: deps.PacerOptions,
		raw:       deps.Raw,
		report:    deps.Report,
		logger:    logger,
		metrics:   newMetrics(deps.MetricsRegistry, name),
		now:       now,
		startTime: now(),
	}
	in.lastActivity.Store(time.Time{})
	in.lastError.Store("")
	return in
}

// Meta returns the component metadata
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("DVL %s input from %s", in.cfg.Transport, in.address()),
		Version:     "1.0.0",
	}
}

func (in *Input) address() string {
	if in.cfg.Transport == config.TransportSerial {
		return in.cfg.Device
	}
	return in.cfg.Address()
}

// InputPorts returns the sensor link
func (in *Input) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "sensor",
		Direction:   component.DirectionInput,
		Transport:   in.cfg.Transport,
		Address:     in.address(),
		Description: "Newline-delimited JSON from the DVL",
	}}
}

// OutputPorts returns the raw and report sinks
func (in *Input) OutputPorts() []component.Port {
	return []component.Port{
		{Name: "raw", Direction: component.DirectionOutput, Description: "Verbatim frames"},
		{Name: "report", Direction: component.DirectionOutput, Description: "Decoded velocity reports"},
	}
}

// Health reports healthy while the loop runs and the last fatal error is
// unset.
func (in *Input) Health() component.HealthStatus {
	lastErr, _ := in.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    in.running.Load() && in.Err() == nil,
		LastCheck:  time.Now(),
		ErrorCount: int(in.errors.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(in.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (in *Input) DataFlow() component.FlowMetrics {
	frames := in.frames.Load()
	errorCount := in.errors.Load()
	lastActivity, _ := in.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(in.startTime).Seconds(); uptime > 0 {
		perSecond = float64(frames) / uptime
	}
	if frames > 0 {
		errorRate = float64(errorCount) / float64(frames)
	}

	var bytesPerSecond float64
	if in.reader != nil {
		if uptime := time.Since(in.startTime).Seconds(); uptime > 0 {
			bytesPerSecond = float64(in.reader.BytesRead()) / uptime
		}
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize checks dependencies and builds the transport, frame reader and
// pacer.
func (in *Input) Initialize() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.raw == nil || in.report == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: raw and report sinks are required", errors.ErrMissingConfig),
			"dvl-input", "Initialize", "sink validation")
	}
	if in.cfg.FrameID == "" {
		in.cfg.FrameID = dvl.DefaultFrameID
	}

	p, err := pacer.New(in.cfg.PublishRateHz, in.pacerOpts...)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"dvl-input", "Initialize", "pacer setup")
	}
	in.pacer = p

	if in.connector == nil {
		c, err := in.buildConnector()
		if err != nil {
			return err
		}
		in.connector = c
	}

	in.reader = stream.NewFrameReader(in.connector,
		stream.WithLogger(in.logger),
		stream.WithReconnectHook(in.onReconnect))
	return nil
}

func (in *Input) buildConnector() (stream.Connector, error) {
	switch in.cfg.Transport {
	case config.TransportTCP, "":
		return stream.NewTCPConnector(stream.TCPConfig{
			Host:              in.cfg.Host,
			Port:              in.cfg.Port,
			ReadTimeout:       in.cfg.ReadTimeout,
			ReconnectInterval: in.cfg.ReconnectInterval,
		}, in.logger, stream.WithAttemptHook(in.onConnectFailure)), nil
	case config.TransportSerial:
		return stream.NewSerialConnector(stream.SerialConfig{
			Device:            in.cfg.Device,
			Baud:              in.cfg.Baud,
			ReadTimeout:       in.cfg.ReadTimeout,
			ReconnectInterval: in.cfg.ReconnectInterval,
		}, in.logger, stream.WithSerialAttemptHook(in.onConnectFailure)), nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown transport %q", errors.ErrInvalidConfig, in.cfg.Transport),
			"dvl-input", "Initialize", "transport selection")
	}
}

func (in *Input) onReconnect(reason error) {
	in.connected.Store(false)
	in.errors.Add(1)
	in.lastError.Store(reason.Error())
	if in.metrics != nil {
		in.metrics.reconnects.Inc()
	}
}

func (in *Input) onConnectFailure(err error) {
	in.lastError.Store(err.Error())
	if in.metrics != nil {
		in.metrics.connectAttempts.Inc()
	}
}

// Start launches the publish loop. It returns immediately; the loop runs
// until ctx is cancelled, Stop is called, or the transport fails fatally.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.reader == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "dvl-input", "Start", "initialize check")
	}
	if in.running.Load() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.done = make(chan struct{})
	in.err = nil
	in.startTime = in.now()
	in.running.Store(true)

	done := in.done
	go func() {
		defer close(done)
		err := in.run(runCtx)

		in.mu.Lock()
		in.err = err
		in.mu.Unlock()
		in.running.Store(false)
		_ = in.reader.Close()

		if err != nil {
			in.lastError.Store(err.Error())
			in.logger.Error("DVL input stopped", "error", err)
			return
		}
		in.logger.Info("DVL input stopped")
	}()

	return nil
}

// Stop cancels the loop and waits for it to finish.
func (in *Input) Stop(timeout time.Duration) error {
	in.mu.Lock()
	cancel := in.cancel
	done := in.done
	in.mu.Unlock()

	if cancel == nil || done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"dvl-input", "Stop", "graceful shutdown")
	}
}

// Done is closed when the loop exits. It is nil before Start.
func (in *Input) Done() <-chan struct{} {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.done
}

// Err returns the fatal error that ended the loop, or nil when it is running
// or was stopped by cancellation.
func (in *Input) Err() error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.err
}

// run is the publish loop. Frames are handled strictly in arrival order.
func (in *Input) run(ctx context.Context) error {
	in.logger.Info("DVL input started",
		"transport", in.cfg.Transport, "address", in.address(),
		"do_log_raw_data", in.cfg.DoLogRawData, "rate_hz", in.cfg.PublishRateHz)

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := in.reader.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		in.connected.Store(true)
		in.observeFrame()

		if !in.handleFrame(ctx, frame) {
			continue
		}

		met, err := in.pacer.Wait(ctx)
		if err != nil {
			return nil
		}
		if !met && in.metrics != nil {
			in.metrics.pacerOverruns.Inc()
		}
	}
}

func (in *Input) observeFrame() {
	in.frames.Add(1)
	in.lastActivity.Store(in.now())

	if in.metrics == nil {
		return
	}
	total := in.reader.BytesRead()
	in.metrics.bytesReceived.Add(float64(total - in.bytesSeen))
	in.bytesSeen = total
	in.metrics.framesReceived.Inc()
}

// handleFrame decodes one frame and forwards it according to the dispatch
// policy. It reports whether a structured report was emitted.
func (in *Input) handleFrame(ctx context.Context, frame []byte) bool {
	rec, err := dvl.Decode(frame)
	if err != nil {
		in.errors.Add(1)
		kind := "unknown"
		var derr *dvl.DecodeError
		if errors.As(err, &derr) {
			kind = derr.Kind.String()
		}
		if in.metrics != nil {
			in.metrics.decodeErrors.WithLabelValues(kind).Inc()
		}
		in.logger.Error("JSON parse error", "error", err, "kind", kind)
		return false
	}

	decision := dvl.Dispatch(in.cfg.DoLogRawData, rec.Kind)

	if decision.Raw {
		if in.cfg.DoLogRawData {
			in.logger.Info("DVL raw data", "data", string(frame))
		}
		in.publish("raw", func() error { return in.raw.PublishRaw(ctx, frame) })
	}

	if !decision.Structured {
		return false
	}

	report := rec.Velocity
	report.Header = dvl.Header{Stamp: in.now(), FrameID: in.cfg.FrameID}
	in.publish("report", func() error { return in.report.PublishReport(ctx, report) })
	in.reports.Add(1)
	if in.metrics != nil {
		in.metrics.lastReport.Set(float64(report.Header.Stamp.Unix()))
	}
	return true
}

func (in *Input) publish(sink string, fn func() error) {
	if err := fn(); err != nil {
		in.errors.Add(1)
		in.lastError.Store(err.Error())
		if in.metrics != nil {
			in.metrics.publishErrors.WithLabelValues(sink).Inc()
		}
		in.logger.Warn("Failed to publish", "sink", sink, "error", err)
		return
	}
	if in.metrics != nil {
		in.metrics.published.WithLabelValues(sink).Inc()
	}
}

// Reports returns how many velocity reports were emitted.
func (in *Input) Reports() int64 {
	return in.reports.Load()
}

// Connected reports whether the last read produced a frame on the current
// connection.
func (in *Input) Connected() bool {
	return in.connected.Load()
}

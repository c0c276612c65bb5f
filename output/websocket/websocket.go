package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dvlstreams/component"
	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/metric"
	"github.com/c360/dvlstreams/output/natspub"
	"github.com/c360/dvlstreams/pkg/retry"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Subscriber is the subset of natsclient.Client the output needs. The
// function returned by Subscribe releases the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (func() error, error)
}

// MessageEnvelope wraps every message sent to a client.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// clientInfo holds information about a connected WebSocket client
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	lastPong    atomic.Value // time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	writeMu     sync.Mutex // gorilla/websocket allows one writer at a time
}

// Metrics holds Prometheus metrics for Output component
type Metrics struct {
	messagesReceived   prometheus.Counter
	messagesSent       prometheus.Counter
	bytesSent          prometheus.Counter
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	errorsTotal        *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, serviceName string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Reports received from NATS",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Messages written to clients",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to clients",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Currently connected clients",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "client_connections_total",
			Help:      "Client connections accepted",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "client_disconnections_total",
			Help:      "Client disconnections by reason",
		}, []string{"disconnect_reason"}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to write one message to all clients",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "WebSocket output errors by type",
		}, []string{"error_type"}),
	}

	_ = registry.RegisterCounter(serviceName, "messages_received", m.messagesReceived)
	_ = registry.RegisterCounter(serviceName, "messages_sent", m.messagesSent)
	_ = registry.RegisterCounter(serviceName, "bytes_sent", m.bytesSent)
	_ = registry.RegisterGauge(serviceName, "clients_connected", m.clientsConnected)
	_ = registry.RegisterCounter(serviceName, "connections", m.connectionTotal)
	_ = registry.RegisterCounterVec(serviceName, "disconnections", m.disconnectionTotal)
	_ = registry.RegisterHistogram(serviceName, "broadcast_duration", m.broadcastDuration)
	_ = registry.RegisterCounterVec(serviceName, "errors", m.errorsTotal)
	return m
}

// Output serves the live report stream to WebSocket clients. Every report
// received on the subject is sent to every connected client as JSON.
type Output struct {
	name     string
	addr     string
	path     string
	subject  string
	encoding string
	nc       Subscriber
	logger   *slog.Logger

	unsubscribe func() error

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	// Lifecycle management
	mu        sync.RWMutex
	running   bool
	shutdown  chan struct{}
	wg        *sync.WaitGroup
	startTime time.Time

	messageIDCounter atomic.Uint64
	messagesReceived atomic.Int64
	messagesSent     atomic.Int64
	bytesSent        atomic.Int64
	errors           atomic.Int64
	lastActivity     atomic.Value // time.Time

	metrics *Metrics
}

var _ component.LifecycleComponent = (*Output)(nil)

// OutputDeps holds runtime dependencies for the WebSocket output
type OutputDeps struct {
	Name     string
	Config   config.WebSocketConfig
	Subject  string // report subject to forward
	Encoding string // encoding of the report subject
	// NATSClient may be nil; the output then only forwards what Broadcast
	// is given.
	NATSClient      Subscriber
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// NewOutput creates the output. Nothing listens until Start.
func NewOutput(deps OutputDeps) *Output {
	name := deps.Name
	if name == "" {
		name = "websocket-output"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", name)
	}

	w := &Output{
		name:     name,
		addr:     deps.Config.Addr,
		path:     deps.Config.Path,
		subject:  deps.Subject,
		encoding: deps.Encoding,
		nc:       deps.NATSClient,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The tap is read-only telemetry, served to any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]*clientInfo),
		startTime: time.Now(),
		metrics:   newMetrics(deps.MetricsRegistry, name),
	}
	w.lastActivity.Store(time.Time{})
	return w
}

// Meta returns the component metadata
func (w *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        w.name,
		Type:        "output",
		Description: fmt.Sprintf("WebSocket server on %s%s serving reports from %s", w.addr, w.path, w.subject),
		Version:     "1.0.0",
	}
}

// InputPorts returns the subscribed subject
func (w *Output) InputPorts() []component.Port {
	return []component.Port{{
		Name:        "reports",
		Direction:   component.DirectionInput,
		Transport:   "nats",
		Address:     w.subject,
		Description: "Velocity report envelopes",
	}}
}

// OutputPorts returns the WebSocket endpoint
func (w *Output) OutputPorts() []component.Port {
	return []component.Port{{
		Name:        "websocket_server",
		Direction:   component.DirectionOutput,
		Transport:   "websocket",
		Address:     w.addr + w.path,
		Description: "Live report stream",
	}}
}

// Health reports healthy while the server runs
func (w *Output) Health() component.HealthStatus {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(w.errors.Load()),
		Uptime:     time.Since(w.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (w *Output) DataFlow() component.FlowMetrics {
	sent := w.messagesSent.Load()
	errorCount := w.errors.Load()
	lastActivity, _ := w.lastActivity.Load().(time.Time)

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(w.startTime).Seconds(); uptime > 0 {
		perSecond = float64(sent) / uptime
		bytesPerSecond = float64(w.bytesSent.Load()) / uptime
	}
	if sent > 0 {
		errorRate = float64(errorCount) / float64(sent)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the configuration
func (w *Output) Initialize() error {
	if w.addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "Initialize", "listen address cannot be empty")
	}
	if w.path == "" || w.path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "Initialize",
			fmt.Sprintf("invalid WebSocket path %q", w.path))
	}
	if w.nc != nil && w.subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "Initialize", "NATS subject cannot be empty")
	}
	if _, err := natspub.EncoderFor(w.encoding); err != nil {
		return err
	}
	return nil
}

// Start binds the listener, subscribes to the report subject and serves
// clients in the background.
func (w *Output) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Output", "Start", "context already cancelled or timed out")
	}

	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return errors.WrapFatal(err, "Output", "Start", fmt.Sprintf("listen on %s", w.addr))
	}

	if w.nc != nil {
		// NATS may still be reconnecting right after startup
		unsubscribe, err := retry.DoWithResult(ctx, retry.Quick(), func() (func() error, error) {
			return w.nc.Subscribe(ctx, w.subject, w.handleNATSMessageData)
		})
		if err != nil {
			_ = ln.Close()
			return errors.Wrap(err, "Output", "Start", fmt.Sprintf("subscribe to %s", w.subject))
		}
		w.unsubscribe = unsubscribe
	}

	w.listener = ln
	w.server = &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}
	w.shutdown = make(chan struct{})
	w.wg = &sync.WaitGroup{}
	w.running = true
	w.startTime = time.Now()

	w.wg.Add(2)
	go w.runServer(w.server, ln)
	go w.maintainClients(ctx, w.shutdown)

	w.logger.Info("WebSocket output listening", "addr", ln.Addr().String(), "path", w.path)
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (w *Output) Addr() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.listener != nil {
		return w.listener.Addr().String()
	}
	return w.addr
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (w *Output) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleWebSocket)
	return mux
}

func (w *Output) runServer(server *http.Server, ln net.Listener) {
	defer w.wg.Done()
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		w.errors.Add(1)
		w.logger.Error("WebSocket server failed", "error", err)
	}
}

// Stop shuts the server down, disconnects all clients and waits for the
// client goroutines.
func (w *Output) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.shutdown)
	server := w.server
	wg := w.wg
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		if err := unsubscribe(); err != nil {
			w.logger.Warn("Unsubscribe failed", "subject", w.subject, "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("HTTP server shutdown error", "error", err)
	}

	// hijacked connections are not closed by Shutdown
	w.closeAllClients()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Output", "Stop", "wait for client goroutines")
	}

	w.mu.Lock()
	w.server = nil
	w.listener = nil
	w.mu.Unlock()
	return nil
}

func (w *Output) closeAllClients() {
	w.clientsMu.RLock()
	infos := make([]*clientInfo, 0, len(w.clients))
	for _, info := range w.clients {
		infos = append(infos, info)
	}
	w.clientsMu.RUnlock()

	for _, info := range infos {
		_ = info.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		w.removeClient(info, "shutdown")
	}
}

// handleNATSMessageData converts one report envelope to JSON and
// broadcasts it.
func (w *Output) handleNATSMessageData(_ context.Context, data []byte) {
	w.messagesReceived.Add(1)
	if w.metrics != nil {
		w.metrics.messagesReceived.Inc()
	}

	payload, err := w.toJSON(data)
	if err != nil {
		w.errors.Add(1)
		if w.metrics != nil {
			w.metrics.errorsTotal.WithLabelValues("decode").Inc()
		}
		w.logger.Warn("Dropping undecodable report", "error", err)
		return
	}
	if err := w.Broadcast(payload); err != nil {
		w.logger.Debug("Report not broadcast", "error", err)
	}
}

func (w *Output) toJSON(data []byte) ([]byte, error) {
	if w.encoding != config.EncodingMsgpack {
		if !json.Valid(data) {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Output", "toJSON", "validate JSON payload")
		}
		return data, nil
	}

	msg, err := natspub.DecodeReport(w.encoding, data)
	if err != nil {
		return nil, err
	}
	return msg.MarshalJSON()
}

// Broadcast sends a JSON payload to every connected client. A client that
// cannot keep up within the write timeout is disconnected. It fails with
// ErrShuttingDown once the output is stopped.
func (w *Output) Broadcast(payload []byte) error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if !running {
		return errors.WrapTransient(errors.ErrShuttingDown, "Output", "Broadcast", "check running")
	}

	start := time.Now()
	w.lastActivity.Store(start)

	envelope, err := json.Marshal(MessageEnvelope{
		Type:      "data",
		ID:        fmt.Sprintf("msg-%d", w.messageIDCounter.Add(1)),
		Timestamp: start.UnixMilli(),
		Subject:   w.subject,
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		w.errors.Add(1)
		if w.metrics != nil {
			w.metrics.errorsTotal.WithLabelValues("envelope_marshal").Inc()
		}
		return errors.WrapInvalid(err, "Output", "Broadcast", "marshal envelope")
	}

	var wg sync.WaitGroup
	for _, info := range w.snapshot() {
		wg.Add(1)
		go func(info *clientInfo) {
			defer wg.Done()
			w.sendToClient(info, envelope)
		}(info)
	}
	wg.Wait()

	if w.metrics != nil {
		w.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (w *Output) snapshot() []*clientInfo {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()

	out := make([]*clientInfo, 0, len(w.clients))
	for _, info := range w.clients {
		if !info.closed.Load() {
			out = append(out, info)
		}
	}
	return out
}

func (w *Output) sendToClient(info *clientInfo, data []byte) {
	info.writeMu.Lock()
	_ = info.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := info.conn.WriteMessage(websocket.TextMessage, data)
	info.writeMu.Unlock()

	if err != nil {
		w.errors.Add(1)
		if w.metrics != nil {
			w.metrics.errorsTotal.WithLabelValues("client_send").Inc()
		}
		w.removeClient(info, "send_error")
		return
	}

	w.messagesSent.Add(1)
	w.bytesSent.Add(int64(len(data)))
	if w.metrics != nil {
		w.metrics.messagesSent.Inc()
		w.metrics.bytesSent.Add(float64(len(data)))
	}
}

func (w *Output) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	running := w.running
	wg := w.wg
	if running {
		wg.Add(1)
	}
	w.mu.RUnlock()

	if !running {
		http.Error(rw, errors.ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		wg.Done()
		w.errors.Add(1)
		if w.metrics != nil {
			w.metrics.errorsTotal.WithLabelValues("connection_upgrade").Inc()
		}
		return
	}

	info := &clientInfo{conn: conn, connectedAt: time.Now()}
	info.lastPong.Store(time.Now())

	w.clientsMu.Lock()
	w.clients[conn] = info
	count := len(w.clients)
	w.clientsMu.Unlock()

	if w.metrics != nil {
		w.metrics.connectionTotal.Inc()
		w.metrics.clientsConnected.Set(float64(count))
	}
	w.logger.Debug("Client connected", "remote", r.RemoteAddr, "clients", count)

	go func() {
		defer wg.Done()
		w.handleClient(info)
	}()
}

// handleClient reads until the client goes away. Clients send nothing the
// server acts on; reading keeps control frames flowing.
func (w *Output) handleClient(info *clientInfo) {
	reason := "normal"
	defer func() { w.removeClient(info, reason) }()

	info.conn.SetPongHandler(func(string) error {
		info.lastPong.Store(time.Now())
		return info.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_ = info.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := info.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "error"
			}
			return
		}
	}
}

func (w *Output) removeClient(info *clientInfo, reason string) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)

		w.clientsMu.Lock()
		delete(w.clients, info.conn)
		count := len(w.clients)
		w.clientsMu.Unlock()

		if w.metrics != nil {
			w.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
			w.metrics.clientsConnected.Set(float64(count))
		}
		_ = info.conn.Close()
	})
}

// maintainClients pings every client periodically
func (w *Output) maintainClients(ctx context.Context, shutdown <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			for _, info := range w.snapshot() {
				info.writeMu.Lock()
				err := info.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				info.writeMu.Unlock()
				if err != nil {
					w.errors.Add(1)
					w.removeClient(info, "ping_failed")
				}
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (w *Output) ClientCount() int {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return len(w.clients)
}

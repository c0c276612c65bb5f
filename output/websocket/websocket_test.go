package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	dvlerrors "github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/message"
	"github.com/c360/dvlstreams/metric"
	"github.com/c360/dvlstreams/output/natspub"
)

// fakeSubscriber keeps the live handlers the way a NATS connection would.
type fakeSubscriber struct {
	mu       sync.Mutex
	subject  string
	handler  func(context.Context, []byte)
	live     map[int]func(context.Context, []byte)
	next     int
	failures int // Subscribe calls to fail before succeeding
	calls    int
}

func (f *fakeSubscriber) Subscribe(
	_ context.Context, subject string, handler func(context.Context, []byte),
) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("nats: not connected")
	}
	if f.live == nil {
		f.live = make(map[int]func(context.Context, []byte))
	}
	id := f.next
	f.next++
	f.live[id] = handler
	f.subject = subject
	f.handler = handler

	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.live, id)
		return nil
	}, nil
}

// deliver hands data to every live handler.
func (f *fakeSubscriber) deliver(data []byte) {
	f.mu.Lock()
	handlers := make([]func(context.Context, []byte), 0, len(f.live))
	for _, h := range f.live {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(context.Background(), data)
	}
}

func (f *fakeSubscriber) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func testReport() *message.BaseMessage {
	report := &dvl.VelocityReport{
		Header:        dvl.Header{Stamp: time.Unix(1700000000, 0).UTC(), FrameID: dvl.DefaultFrameID},
		Velocity:      dvl.Vector3{X: 0.12, Y: -0.03, Z: 0.01},
		FOM:           0.002,
		Altitude:      4.2,
		VelocityValid: true,
		Form:          "json_v3",
	}
	return message.NewBaseMessage(dvl.VelocityType, report, "test",
		message.WithTime(report.Header.Stamp))
}

func newTestOutput(t *testing.T, encoding string, sub Subscriber) *Output {
	t.Helper()

	out := NewOutput(OutputDeps{
		Config:          config.WebSocketConfig{Enabled: true, Addr: "127.0.0.1:0", Path: "/ws"},
		Subject:         "dvl.data",
		Encoding:        encoding,
		NATSClient:      sub,
		MetricsRegistry: metric.NewMetricsRegistry(),
	})
	require.NoError(t, out.Initialize())
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Stop(2 * time.Second) })
	return out
}

func dial(t *testing.T, out *Output) *websocket.Conn {
	t.Helper()

	u := url.URL{Scheme: "ws", Host: out.Addr(), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) MessageEnvelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	var env MessageEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestOutput_SubscribesToReportSubject(t *testing.T) {
	sub := &fakeSubscriber{}
	newTestOutput(t, config.EncodingJSON, sub)

	assert.Equal(t, "dvl.data", sub.subject)
	assert.NotNil(t, sub.handler)
}

func TestOutput_ForwardsJSONReports(t *testing.T) {
	sub := &fakeSubscriber{}
	out := newTestOutput(t, config.EncodingJSON, sub)
	conn := dial(t, out)

	data, err := natspub.EncodeJSON(testReport())
	require.NoError(t, err)
	sub.handler(context.Background(), data)

	env := readEnvelope(t, conn)
	assert.Equal(t, "data", env.Type)
	assert.Equal(t, "msg-1", env.ID)
	assert.Equal(t, "dvl.data", env.Subject)
	assert.JSONEq(t, string(data), string(env.Payload))
}

func TestOutput_TranscodesMsgpack(t *testing.T) {
	sub := &fakeSubscriber{}
	out := newTestOutput(t, config.EncodingMsgpack, sub)
	conn := dial(t, out)

	msg := testReport()
	data, err := natspub.EncodeMsgpack(msg)
	require.NoError(t, err)
	sub.handler(context.Background(), data)

	env := readEnvelope(t, conn)
	decoded, err := natspub.DecodeReport(config.EncodingJSON, env.Payload)
	require.NoError(t, err)
	assert.Equal(t, msg.ID(), decoded.ID())

	report, ok := decoded.Payload().(*dvl.VelocityReport)
	require.True(t, ok)
	assert.InDelta(t, 4.2, report.Altitude, 1e-9)
	assert.Equal(t, dvl.DefaultFrameID, report.Header.FrameID)
}

func TestOutput_DropsUndecodablePayloads(t *testing.T) {
	sub := &fakeSubscriber{}
	out := newTestOutput(t, config.EncodingJSON, sub)
	conn := dial(t, out)

	sub.handler(context.Background(), []byte("{not json"))
	assert.Equal(t, 1, out.Health().ErrorCount)

	data, err := natspub.EncodeJSON(testReport())
	require.NoError(t, err)
	sub.handler(context.Background(), data)

	// the first frame the client sees is the valid report
	env := readEnvelope(t, conn)
	assert.Equal(t, "msg-1", env.ID)
}

func TestOutput_BroadcastsToAllClients(t *testing.T) {
	out := newTestOutput(t, config.EncodingJSON, nil)

	u := url.URL{Scheme: "ws", Host: out.Addr(), Path: "/ws"}
	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		conns = append(conns, conn)
	}
	require.Eventually(t, func() bool { return out.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, out.Broadcast([]byte(`{"altitude":1.5}`)))
	assert.EqualValues(t, 3, out.messagesSent.Load())

	for _, conn := range conns {
		env := readEnvelope(t, conn)
		assert.JSONEq(t, `{"altitude":1.5}`, string(env.Payload))
	}
}

func TestOutput_ClientDisconnectRemoved(t *testing.T) {
	out := newTestOutput(t, config.EncodingJSON, nil)
	conn := dial(t, out)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return out.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOutput_StopClosesClients(t *testing.T) {
	out := newTestOutput(t, config.EncodingJSON, nil)
	conn := dial(t, out)

	require.NoError(t, out.Stop(2*time.Second))
	assert.Equal(t, 0, out.ClientCount())
	assert.False(t, out.Health().Healthy)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// stopping twice is a no-op
	assert.NoError(t, out.Stop(time.Second))
}

func TestOutput_BroadcastWhenStopped(t *testing.T) {
	out := NewOutput(OutputDeps{
		Config: config.WebSocketConfig{Addr: "127.0.0.1:0", Path: "/ws"},
	})
	err := out.Broadcast([]byte(`{}`))
	assert.ErrorIs(t, err, dvlerrors.ErrShuttingDown)
	assert.True(t, dvlerrors.IsTransient(err))
	assert.Zero(t, out.messagesSent.Load())
}

func TestOutput_StopReleasesSubscription(t *testing.T) {
	sub := &fakeSubscriber{}
	out := newTestOutput(t, config.EncodingJSON, sub)
	require.Equal(t, 1, sub.liveCount())

	require.NoError(t, out.Stop(2*time.Second))
	assert.Equal(t, 0, sub.liveCount())

	// a restart subscribes once, so each report reaches a client once
	require.NoError(t, out.Start(context.Background()))
	require.Equal(t, 1, sub.liveCount())
	conn := dial(t, out)

	data, err := natspub.EncodeJSON(testReport())
	require.NoError(t, err)
	sub.deliver(data)
	sub.deliver(data)

	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)
	assert.Equal(t, "msg-1", first.ID)
	assert.Equal(t, "msg-2", second.ID)
	assert.EqualValues(t, 2, out.messagesReceived.Load())
}

func TestOutput_SubscribeRetriedAtStartup(t *testing.T) {
	sub := &fakeSubscriber{failures: 2}
	newTestOutput(t, config.EncodingJSON, sub)

	assert.Equal(t, 3, sub.calls)
	assert.Equal(t, 1, sub.liveCount())
}

func TestOutput_HandshakeRejectedWhenStopped(t *testing.T) {
	out := NewOutput(OutputDeps{
		Config: config.WebSocketConfig{Addr: "127.0.0.1:0", Path: "/ws"},
	})
	srv := httptest.NewServer(out.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOutput_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		deps    OutputDeps
		wantErr bool
	}{
		{
			name: "valid without NATS",
			deps: OutputDeps{Config: config.WebSocketConfig{Addr: ":8082", Path: "/ws"}},
		},
		{
			name:    "empty address",
			deps:    OutputDeps{Config: config.WebSocketConfig{Path: "/ws"}},
			wantErr: true,
		},
		{
			name:    "relative path",
			deps:    OutputDeps{Config: config.WebSocketConfig{Addr: ":8082", Path: "ws"}},
			wantErr: true,
		},
		{
			name: "subscriber without subject",
			deps: OutputDeps{
				Config:     config.WebSocketConfig{Addr: ":8082", Path: "/ws"},
				NATSClient: &fakeSubscriber{},
			},
			wantErr: true,
		},
		{
			name: "unknown encoding",
			deps: OutputDeps{
				Config:   config.WebSocketConfig{Addr: ":8082", Path: "/ws"},
				Encoding: "cbor",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOutput(tt.deps).Initialize()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutput_Discovery(t *testing.T) {
	out := NewOutput(OutputDeps{
		Config:  config.WebSocketConfig{Addr: ":8082", Path: "/ws"},
		Subject: "dvl.data",
	})

	meta := out.Meta()
	assert.Equal(t, "websocket-output", meta.Name)
	assert.Equal(t, "output", meta.Type)

	require.Len(t, out.InputPorts(), 1)
	assert.Equal(t, "dvl.data", out.InputPorts()[0].Address)
	require.Len(t, out.OutputPorts(), 1)
	assert.Equal(t, ":8082/ws", out.OutputPorts()[0].Address)
	assert.Equal(t, ":8082", out.Addr())
}

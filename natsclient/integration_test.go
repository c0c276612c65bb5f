//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_ConnectToRealNATS(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())

	assert.True(t, tc.IsReady())
	assert.Equal(t, StatusConnected, tc.Client.Status())

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	status := tc.Client.GetStatus()
	assert.Equal(t, StatusConnected, status.Status)
	assert.NotNil(t, tc.GetNativeConnection())
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx := context.Background()

	received := make(chan string, 1)
	_, err := tc.Client.Subscribe(ctx, "dvl.json_data", func(_ context.Context, data []byte) {
		received <- string(data)
	})
	require.NoError(t, err)

	frame := `{"type":"position_local","x":1.5}`
	require.NoError(t, tc.Client.Publish(ctx, "dvl.json_data", []byte(frame)))

	select {
	case msg := <-received:
		assert.Equal(t, frame, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestIntegration_UnsubscribeStopsDelivery(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx := context.Background()

	received := make(chan string, 4)
	release, err := tc.Client.Subscribe(ctx, "dvl.data", func(_ context.Context, data []byte) {
		received <- string(data)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tc.Client.SubscriptionCount())

	require.NoError(t, release())
	assert.Equal(t, 0, tc.Client.SubscriptionCount())
	assert.NoError(t, release())

	require.NoError(t, tc.Client.Publish(ctx, "dvl.data", []byte("late")))
	require.NoError(t, tc.GetNativeConnection().Flush())

	select {
	case msg := <-received:
		t.Fatalf("delivered after unsubscribe: %s", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIntegration_KeyValueBucket(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("dvl_shadow"))
	ctx := context.Background()

	// existing bucket is reused
	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "dvl_shadow"})
	require.NoError(t, err)

	_, err = bucket.Put(ctx, "dvl_link", []byte(`{"vx":0.1}`))
	require.NoError(t, err)

	same, err := tc.Client.GetKeyValueBucket(ctx, "dvl_shadow")
	require.NoError(t, err)

	entry, err := same.Get(ctx, "dvl_link")
	require.NoError(t, err)
	assert.JSONEq(t, `{"vx":0.1}`, string(entry.Value()))
}

func TestIntegration_CloseDrains(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release, err := tc.Client.Subscribe(ctx, "dvl.data", func(context.Context, []byte) {})
	require.NoError(t, err)
	require.NoError(t, tc.Client.Close(ctx))

	// releasing after Close is a no-op
	assert.NoError(t, release())

	assert.Equal(t, StatusDisconnected, tc.Client.Status())
	assert.ErrorIs(t, tc.Client.Publish(ctx, "dvl.data", []byte("x")), ErrNotConnected)
}

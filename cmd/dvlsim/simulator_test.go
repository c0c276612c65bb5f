package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/stream"
)

func TestEncodeVelocity_Decodes(t *testing.T) {
	frame, err := EncodeVelocity(12.5, 100)
	require.NoError(t, err)

	rec, err := dvl.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, dvl.KindVelocity, rec.Kind)
	assert.InDelta(t, 100, rec.Velocity.Time, 1e-9)
	assert.True(t, rec.Velocity.VelocityValid)
	for i, b := range rec.Velocity.Beams {
		assert.Equal(t, int64(i), b.ID)
	}
}

func TestEncodeDeadReckoning_IsOtherKind(t *testing.T) {
	frame, err := EncodeDeadReckoning(3)
	require.NoError(t, err)

	rec, err := dvl.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, dvl.KindOther, rec.Kind)
	assert.Equal(t, "position_local", rec.Type)
}

func TestSimulator_FragmentedStreamWithDisconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := NewSimulator(SimConfig{
		RateHz:             200,
		DeadReckoningEvery: 2,
		Fragment:           true,
		DisconnectAfter:    4,
		Seed:               7,
	}, logger)

	served := make(chan error, 1)
	go func() { served <- sim.Serve(ctx, ln) }()

	connector := stream.NewTCPConnector(stream.TCPConfig{
		Host:              "127.0.0.1",
		Port:              port,
		ReadTimeout:       time.Second,
		ReconnectInterval: 10 * time.Millisecond,
	}, logger)
	reader := stream.NewFrameReader(connector, stream.WithLogger(logger))
	defer reader.Close()

	// each connection carries v, v, position, v before the simulator drops it
	var velocity, other int
	for i := 0; i < 12; i++ {
		frame, err := reader.NextFrame(ctx)
		require.NoError(t, err)

		rec, err := dvl.Decode(frame)
		require.NoError(t, err, "frame %d: %s", i, frame)
		if rec.Kind == dvl.KindVelocity {
			velocity++
		} else {
			other++
		}
	}

	assert.Equal(t, 9, velocity)
	assert.Equal(t, 3, other)
	assert.GreaterOrEqual(t, reader.Reconnects(), int64(2))

	cancel()
	assert.NoError(t, <-served)
	assert.GreaterOrEqual(t, sim.Sent(), int64(12))
}

package shadow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
)

func sampleReport(altitude float64) *dvl.VelocityReport {
	r := &dvl.VelocityReport{
		Header:        dvl.Header{Stamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), FrameID: dvl.DefaultFrameID},
		Time:          99.5,
		Velocity:      dvl.Vector3{X: 0.12, Y: -0.03, Z: 0.004},
		FOM:           0.0017,
		Altitude:      altitude,
		VelocityValid: true,
		Form:          "json_v3.1",
	}
	for i := range r.Beams {
		r.Beams[i] = dvl.Beam{ID: int64(i), Velocity: 0.05, Distance: altitude, RSSI: -35, NSD: -96, Valid: true}
	}
	return r
}

func boltConfig(t *testing.T) config.ShadowConfig {
	cfg := config.Default().Shadow
	cfg.Backend = config.ShadowBolt
	cfg.BoltPath = filepath.Join(t.TempDir(), "shadow.db")
	return cfg
}

func TestBoltStore_LatestOverwrites(t *testing.T) {
	store, err := OpenBolt(boltConfig(t), nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Latest(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrKeyNotFound))

	require.NoError(t, store.PublishReport(ctx, sampleReport(1.5)))
	require.NoError(t, store.PublishReport(ctx, sampleReport(2.75)))

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.75, got.Altitude, 1e-9)
	assert.Equal(t, "dvl_link", got.Header.FrameID)
	assert.Equal(t, sampleReport(2.75).Beams, got.Beams)
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	cfg := boltConfig(t)
	ctx := context.Background()

	store, err := OpenBolt(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.PublishReport(ctx, sampleReport(3.1)))
	require.NoError(t, store.Close())

	store, err = OpenBolt(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.1, got.Altitude, 1e-9)
}

func TestOpenBolt_BadPath(t *testing.T) {
	cfg := boltConfig(t)
	cfg.BoltPath = filepath.Join(t.TempDir(), "missing-dir", "shadow.db")

	_, err := OpenBolt(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, config.Default().Shadow, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, store, "no backend configured")

	cfg := config.Default().Shadow
	cfg.Backend = config.ShadowNATSKV
	_, err = New(ctx, cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	cfg.Backend = "etcd"
	_, err = New(ctx, cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	store, err = New(ctx, boltConfig(t), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.IsType(t, &BoltStore{}, store)
	assert.NoError(t, store.Close())
}

func TestRedisKey(t *testing.T) {
	cfg := config.Default().Shadow
	assert.Equal(t, "dvl_shadow:shadow:latest", RedisKey(cfg))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	cfg := config.Default().Shadow
	cfg.Backend = config.ShadowRedis
	cfg.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := OpenRedis(ctx, cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	// the ping is retried until the context gives up
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

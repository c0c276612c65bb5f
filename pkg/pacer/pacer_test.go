package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to or when the pacer sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFake(t *testing.T, hz float64) (*Pacer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	p, err := New(hz, WithClock(clock.Now, clock.Sleep))
	require.NoError(t, err)
	return p, clock
}

func TestNew_InvalidRate(t *testing.T) {
	for _, hz := range []float64{0, -1} {
		p, err := New(hz)
		assert.ErrorIs(t, err, ErrInvalidRate)
		assert.Nil(t, p)
	}
}

func TestPacer_Period(t *testing.T) {
	p, _ := newFake(t, 10)
	assert.Equal(t, 100*time.Millisecond, p.Period())
}

func TestPacer_SleepsRemainder(t *testing.T) {
	p, clock := newFake(t, 10)

	clock.Advance(30 * time.Millisecond)
	met, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, met)
	assert.Equal(t, []time.Duration{70 * time.Millisecond}, clock.sleeps)

	// Next cycle is anchored to the previous boundary, not to when Wait returned.
	clock.Advance(10 * time.Millisecond)
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Millisecond, clock.sleeps[1])
}

func TestPacer_OverrunWithinOnePeriod(t *testing.T) {
	p, clock := newFake(t, 10)

	clock.Advance(150 * time.Millisecond)
	met, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, met)
	assert.Empty(t, clock.sleeps)

	// Schedule kept: the next boundary is at 200ms.
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, clock.sleeps)
}

func TestPacer_FarBehindResetsSchedule(t *testing.T) {
	p, clock := newFake(t, 10)

	clock.Advance(time.Second)
	met, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, met)

	// No burst: a full period is slept from the reset point.
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.sleeps)
}

func TestPacer_ClockJumpBackwards(t *testing.T) {
	p, clock := newFake(t, 10)

	clock.Advance(-time.Hour)
	met, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, met)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.sleeps)
}

func TestPacer_Reset(t *testing.T) {
	p, clock := newFake(t, 10)

	clock.Advance(5 * time.Second)
	p.Reset()
	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clock.sleeps)
}

func TestPacer_ContextCancelled(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

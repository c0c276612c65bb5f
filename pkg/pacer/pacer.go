// Package pacer enforces a fixed output cadence for a loop.
//
// A Pacer keeps a schedule of cycle boundaries. Wait sleeps until the next
// boundary; when the caller has fallen more than a full period behind, the
// schedule restarts from the current time instead of bursting to catch up.
package pacer

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRate is returned by New for a non-positive rate.
var ErrInvalidRate = errors.New("pacer: rate must be positive")

// Pacer sleeps out the remainder of each cycle. It is not safe for
// concurrent use; one loop owns it.
type Pacer struct {
	period time.Duration
	start  time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithClock replaces the time source and the sleep function. Used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pacer) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New creates a pacer running at hz cycles per second. The first cycle
// starts immediately.
func New(hz float64, opts ...Option) (*Pacer, error) {
	if hz <= 0 {
		return nil, ErrInvalidRate
	}
	p := &Pacer{
		period: time.Duration(float64(time.Second) / hz),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.start = p.now()
	return p, nil
}

// Period returns the cycle length.
func (p *Pacer) Period() time.Duration {
	return p.period
}

// Reset restarts the schedule from now.
func (p *Pacer) Reset() {
	p.start = p.now()
}

// Wait blocks until the end of the current cycle. It reports whether the
// cycle was met; false means the caller overran it and no sleep happened.
// A cancelled context ends the sleep early and is returned as the error.
func (p *Pacer) Wait(ctx context.Context) (bool, error) {
	expected := p.start.Add(p.period)
	actual := p.now()

	// Clock jumped backwards.
	if actual.Before(p.start) {
		expected = actual.Add(p.period)
	}

	remaining := expected.Sub(actual)
	p.start = expected

	if remaining <= 0 {
		if actual.After(expected.Add(p.period)) {
			p.start = actual
		}
		return false, nil
	}

	if err := p.sleep(ctx, remaining); err != nil {
		return true, err
	}
	return true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

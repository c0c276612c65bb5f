// Package retry provides backoff retry logic for transient failures.
//
// # Overview
//
// The bridge retries two kinds of work: connecting to the DVL, which must
// keep trying at a fixed interval for as long as the process runs, and
// reaching supporting services (NATS, Redis) during startup, which should
// give up after a bounded number of attempts.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (JetStream bucket setup)
//   - Quick(): 10 attempts, 50ms-1s delay (startup of supporting services)
//   - Forever(interval): unlimited attempts at a fixed interval (sensor link)
//
// # Usage
//
//	cfg := retry.Forever(time.Second)
//	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
//	    logger.Warn("sensor not reachable", "attempt", attempt, "error", err)
//	}
//	err := retry.Do(ctx, cfg, func() error {
//	    conn, err = dialer.DialContext(ctx, "tcp", addr)
//	    return err
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately and are
// returned as-is, so a caller can tell a bad address from a sensor that is
// still booting.
//
// # Context Cancellation
//
// Do stops as soon as ctx is cancelled, either between attempts or during
// the backoff delay.
package retry

package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/pkg/retry"
)

// SerialConfig configures a SerialConnector.
type SerialConfig struct {
	Device            string
	Baud              int
	ReadTimeout       time.Duration
	ReconnectInterval time.Duration
}

// OpenFunc matches serial.Open.
type OpenFunc func(device string, mode *serial.Mode) (serial.Port, error)

// SerialConnector connects to a sensor wired to a serial port. A read that
// times out returns zero bytes, which FrameReader treats as a dropped link.
type SerialConnector struct {
	cfg       SerialConfig
	open      OpenFunc
	logger    *slog.Logger
	onAttempt func(err error)
}

// SerialOption configures a SerialConnector.
type SerialOption func(*SerialConnector)

// WithOpener replaces serial.Open. Used by tests.
func WithOpener(open OpenFunc) SerialOption {
	return func(c *SerialConnector) {
		c.open = open
	}
}

// WithSerialAttemptHook is called after every failed open attempt.
func WithSerialAttemptHook(fn func(err error)) SerialOption {
	return func(c *SerialConnector) {
		c.onAttempt = fn
	}
}

// NewSerialConnector creates a serial connector. Zero timings fall back to
// the defaults.
func NewSerialConnector(cfg SerialConfig, logger *slog.Logger, opts ...SerialOption) *SerialConnector {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if logger == nil {
		logger = slog.Default().With("component", "serial-connector")
	}

	c := &SerialConnector{
		cfg:    cfg,
		open:   serial.Open,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the device, retrying at a fixed interval while it is absent
// or busy.
func (c *SerialConnector) Connect(ctx context.Context) (io.ReadCloser, error) {
	if c.cfg.Device == "" || c.cfg.Baud <= 0 {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: device %q baud %d", errors.ErrInvalidConfig, c.cfg.Device, c.cfg.Baud),
			"SerialConnector", "Connect", "mode validation")
	}

	mode := &serial.Mode{
		BaudRate: c.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	policy := retry.Forever(c.cfg.ReconnectInterval)
	policy.OnRetry = func(attempt int, err error, _ time.Duration) {
		c.logger.Error("Serial device not available, DVL might be booting?",
			"device", c.cfg.Device, "attempt", attempt, "error", err)
		if c.onAttempt != nil {
			c.onAttempt(err)
		}
	}

	port, err := retry.DoWithResult(ctx, policy, func() (serial.Port, error) {
		p, err := c.open(c.cfg.Device, mode)
		if err != nil {
			if isInvalidMode(err) {
				return nil, retry.NonRetryable(errors.WrapFatal(err, "SerialConnector", "Connect", "open device"))
			}
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrSensorUnreachable, err),
				"SerialConnector", "Connect", "open device")
		}
		if err := p.SetReadTimeout(c.cfg.ReadTimeout); err != nil {
			_ = p.Close()
			return nil, errors.WrapTransient(err, "SerialConnector", "Connect", "set read timeout")
		}
		return p, nil
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if errors.As(err, &nre) {
			return nil, nre.Err
		}
		return nil, errors.Wrap(err, "SerialConnector", "Connect", "open sensor port")
	}

	c.logger.Info("Opened DVL serial port", "device", c.cfg.Device, "baud", c.cfg.Baud)
	return port, nil
}

// isInvalidMode reports open errors caused by the configuration rather than
// the device being absent.
func isInvalidMode(err error) bool {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return false
	}
	switch portErr.Code() {
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return true
	}
	return false
}

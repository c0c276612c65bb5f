package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/pkg/retry"
)

// Default link timings.
const (
	DefaultReadTimeout       = time.Second
	DefaultReconnectInterval = time.Second
	defaultDialTimeout       = 5 * time.Second
)

// Connector opens a byte stream to the sensor. Connect blocks until the
// stream is open, ctx is done, or a fatal error occurs.
type Connector interface {
	Connect(ctx context.Context) (io.ReadCloser, error)
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPConfig configures a TCPConnector.
type TCPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	ReconnectInterval time.Duration
}

// Address returns host:port.
func (c TCPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TCPConnector connects to the sensor over TCP.
type TCPConnector struct {
	cfg       TCPConfig
	dial      DialFunc
	lookup    func(ctx context.Context, host string) ([]net.IPAddr, error)
	logger    *slog.Logger
	onAttempt func(err error)
}

// TCPOption configures a TCPConnector.
type TCPOption func(*TCPConnector)

// WithDialer replaces the dial function. Used by tests.
func WithDialer(dial DialFunc) TCPOption {
	return func(c *TCPConnector) {
		c.dial = dial
	}
}

// WithLookup replaces host resolution. Used by tests.
func WithLookup(lookup func(ctx context.Context, host string) ([]net.IPAddr, error)) TCPOption {
	return func(c *TCPConnector) {
		c.lookup = lookup
	}
}

// WithAttemptHook is called after every failed connect attempt.
func WithAttemptHook(fn func(err error)) TCPOption {
	return func(c *TCPConnector) {
		c.onAttempt = fn
	}
}

// NewTCPConnector creates a connector. Zero timings fall back to the defaults.
func NewTCPConnector(cfg TCPConfig, logger *slog.Logger, opts ...TCPOption) *TCPConnector {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if logger == nil {
		logger = slog.Default().With("component", "tcp-connector")
	}

	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 15 * time.Second}
	c := &TCPConnector{
		cfg:    cfg,
		dial:   dialer.DialContext,
		lookup: net.DefaultResolver.LookupIPAddr,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the sensor, retrying at a fixed interval until it answers.
// The returned stream fails any read that waits longer than the read timeout.
func (c *TCPConnector) Connect(ctx context.Context) (io.ReadCloser, error) {
	if c.cfg.Host == "" || c.cfg.Port <= 0 || c.cfg.Port > 65535 {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: invalid sensor address %q", errors.ErrInvalidConfig, c.cfg.Address()),
			"TCPConnector", "Connect", "address validation")
	}

	policy := retry.Forever(c.cfg.ReconnectInterval)
	policy.OnRetry = func(attempt int, err error, _ time.Duration) {
		c.logger.Error("No route to host, DVL might be booting?",
			"address", c.cfg.Address(), "attempt", attempt, "error", err)
		if c.onAttempt != nil {
			c.onAttempt(err)
		}
	}

	conn, err := retry.DoWithResult(ctx, policy, func() (net.Conn, error) {
		return c.dialOnce(ctx)
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if errors.As(err, &nre) {
			return nil, nre.Err
		}
		return nil, errors.Wrap(err, "TCPConnector", "Connect", "connect to sensor")
	}

	c.logger.Info("Connected to DVL", "address", conn.RemoteAddr().String())
	return &deadlineConn{Conn: conn, timeout: c.cfg.ReadTimeout}, nil
}

func (c *TCPConnector) dialOnce(ctx context.Context) (net.Conn, error) {
	addr, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		if isResourceError(err) {
			return nil, retry.NonRetryable(errors.WrapFatal(
				fmt.Errorf("%w: %w", errors.ErrResourceExhausted, err),
				"TCPConnector", "Connect", "open socket"))
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrSensorUnreachable, err),
			"TCPConnector", "Connect", "dial sensor")
	}
	return conn, nil
}

// resolve maps the host to an address to dial. A host that does not exist is
// fatal; a resolver that is temporarily unavailable is retried.
func (c *TCPConnector) resolve(ctx context.Context) (string, error) {
	port := strconv.Itoa(c.cfg.Port)
	if ip := net.ParseIP(c.cfg.Host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	addrs, err := c.lookup(ctx, c.cfg.Host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
			return "", errors.WrapTransient(err, "TCPConnector", "Connect", "resolve sensor host")
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.NonRetryable(errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"TCPConnector", "Connect", "resolve sensor host"))
	}
	if len(addrs) == 0 {
		return "", retry.NonRetryable(errors.WrapFatal(
			fmt.Errorf("%w: no addresses for %q", errors.ErrInvalidConfig, c.cfg.Host),
			"TCPConnector", "Connect", "resolve sensor host"))
	}
	return net.JoinHostPort(addrs[0].IP.String(), port), nil
}

// isResourceError reports socket failures that retrying cannot fix.
func isResourceError(err error) bool {
	for _, errno := range []syscall.Errno{
		syscall.EMFILE, syscall.ENFILE, syscall.EAFNOSUPPORT, syscall.ENOBUFS, syscall.ENOMEM,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// deadlineConn re-arms the read deadline before every read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

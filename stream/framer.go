package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/c360/dvlstreams/errors"
)

// Delimiter terminates every frame.
const Delimiter = '\n'

const defaultChunkSize = 4096

// FrameReader yields newline-delimited frames from a Connector, replacing the
// connection on any read failure.
type FrameReader struct {
	connector Connector
	conn      io.ReadCloser
	buf       []byte // carry-over: buf[off:] follows the last returned frame
	off       int
	chunk     []byte
	logger    *slog.Logger

	onReconnect func(reason error)

	bytesRead  atomic.Int64
	frames     atomic.Int64
	reconnects atomic.Int64
}

// ReaderOption configures a FrameReader.
type ReaderOption func(*FrameReader)

// WithLogger sets the logger used to report dropped connections.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *FrameReader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithChunkSize sets how many bytes are requested per read.
func WithChunkSize(n int) ReaderOption {
	return func(r *FrameReader) {
		if n > 0 {
			r.chunk = make([]byte, n)
		}
	}
}

// WithReconnectHook is called every time a connection is dropped, with the
// reason (ErrStreamClosed or ErrConnectionLost wrapping the read error).
func WithReconnectHook(fn func(reason error)) ReaderOption {
	return func(r *FrameReader) {
		r.onReconnect = fn
	}
}

// NewFrameReader creates a reader. No connection is opened until the first
// call to NextFrame.
func NewFrameReader(connector Connector, opts ...ReaderOption) *FrameReader {
	r := &FrameReader{
		connector: connector,
		chunk:     make([]byte, defaultChunkSize),
		logger:    slog.Default().With("component", "frame-reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NextFrame returns the next frame with the delimiter stripped. The returned
// slice is owned by the caller.
//
// Read failures never surface: the connection is dropped and reopened, and
// buffered bytes carry over to the new connection. The only errors returned
// are from the Connector (fatal, or ctx done) and ctx itself.
func (r *FrameReader) NextFrame(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := r.extract(); ok {
			return frame, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.conn == nil {
			conn, err := r.connector.Connect(ctx)
			if err != nil {
				return nil, err
			}
			r.conn = conn
		}

		n, err := r.conn.Read(r.chunk)
		if n > 0 {
			r.compact()
			r.buf = append(r.buf, r.chunk[:n]...)
			r.bytesRead.Add(int64(n))
		}

		if (err != nil || n == 0) && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case err == nil && n > 0:
		case err == nil, errors.Is(err, io.EOF):
			r.drop(errors.ErrStreamClosed, "Socket closed by the DVL, reopening")
		default:
			r.drop(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err),
				"Lost connection with the DVL, reinitiating the connection")
		}
	}
}

// extract cuts the first frame out of the buffer by advancing the read
// offset. The consumed prefix is reclaimed by compact on the next read.
func (r *FrameReader) extract() ([]byte, bool) {
	i := bytes.IndexByte(r.buf[r.off:], Delimiter)
	if i < 0 {
		return nil, false
	}
	frame := make([]byte, i)
	copy(frame, r.buf[r.off:r.off+i])

	r.off += i + 1
	if r.off == len(r.buf) {
		r.buf = r.buf[:0]
		r.off = 0
	}

	r.frames.Add(1)
	return frame, true
}

// compact moves the unconsumed tail to the front of buf.
func (r *FrameReader) compact() {
	if r.off == 0 {
		return
	}
	rest := copy(r.buf, r.buf[r.off:])
	r.buf = r.buf[:rest]
	r.off = 0
}

func (r *FrameReader) drop(reason error, msg string) {
	r.logger.Error(msg, "error", reason, "buffered_bytes", r.Buffered())
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.reconnects.Add(1)
	if r.onReconnect != nil {
		r.onReconnect(reason)
	}
}

// Buffered returns the number of carry-over bytes not yet part of a frame.
func (r *FrameReader) Buffered() int {
	return len(r.buf) - r.off
}

// Connected reports whether a connection is currently open.
func (r *FrameReader) Connected() bool {
	return r.conn != nil
}

// BytesRead returns the total bytes received across all connections.
func (r *FrameReader) BytesRead() int64 {
	return r.bytesRead.Load()
}

// Frames returns the number of frames returned so far.
func (r *FrameReader) Frames() int64 {
	return r.frames.Load()
}

// Reconnects returns how many times a connection was dropped.
func (r *FrameReader) Reconnects() int64 {
	return r.reconnects.Load()
}

// Close closes the current connection. Buffered bytes are kept, so a later
// NextFrame resumes on a new connection.
func (r *FrameReader) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

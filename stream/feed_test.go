package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// step is one scripted Read result.
type step struct {
	data string
	err  error
}

// feedConn replays steps, then reports EOF.
type feedConn struct {
	steps  []step
	closed bool
}

func (c *feedConn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("read on closed conn")
	}
	if len(c.steps) == 0 {
		return 0, io.EOF
	}
	s := c.steps[0]
	n := copy(p, s.data)
	if n < len(s.data) {
		c.steps[0].data = s.data[n:]
		return n, nil
	}
	c.steps = c.steps[1:]
	return n, s.err
}

func (c *feedConn) Close() error {
	c.closed = true
	return nil
}

// feedConnector hands out scripted connections in order. Once they run out it
// returns errExhausted.
type feedConnector struct {
	mu      sync.Mutex
	conns   []*feedConn
	opened  []*feedConn
	connErr error
}

var errExhausted = fmt.Errorf("feed exhausted")

func newFeed(conns ...[]step) *feedConnector {
	f := &feedConnector{}
	for _, steps := range conns {
		f.conns = append(f.conns, &feedConn{steps: steps})
	}
	return f
}

func (f *feedConnector) Connect(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.connErr != nil {
		return nil, f.connErr
	}
	if len(f.conns) == 0 {
		return nil, errExhausted
	}
	c := f.conns[0]
	f.conns = f.conns[1:]
	f.opened = append(f.opened, c)
	return c, nil
}

// chunks splits s into pieces of size n as read steps.
func chunks(s string, n int) []step {
	var out []step
	for len(s) > 0 {
		k := n
		if k > len(s) {
			k = len(s)
		}
		out = append(out, step{data: s[:k]})
		s = s[k:]
	}
	return out
}

// readAll collects frames until the connector is exhausted.
func readAll(ctx context.Context, r *FrameReader) ([]string, error) {
	var frames []string
	for {
		f, err := r.NextFrame(ctx)
		if err != nil {
			return frames, err
		}
		frames = append(frames, string(f))
	}
}

package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"
)

const (
	defaultReadBufferSize = 32 * 1024
	defaultWriteStep      = 100 * time.Millisecond
)

// NetChannel adapts a net.Conn to Channel. Readiness is detected by peeking
// one byte under a read deadline; writes run under a short deadline so that a
// peer that stops draining its socket shows up as partial writes.
type NetChannel struct {
	conn      net.Conn
	r         *bufio.Reader
	writeStep time.Duration
	closed    atomic.Bool
}

// NewNetChannel wraps conn.
func NewNetChannel(conn net.Conn) *NetChannel {
	return &NetChannel{
		conn:      conn,
		r:         bufio.NewReaderSize(conn, defaultReadBufferSize),
		writeStep: defaultWriteStep,
	}
}

// Dial connects to a raw TCP broadcaster.
func Dial(ctx context.Context, addr string) (*NetChannel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewNetChannel(conn), nil
}

// WaitReadable reports whether at least one byte, or the end of the stream,
// can be read without blocking.
func (c *NetChannel) WaitReadable(timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, ErrChannelClosed
	}
	if c.r.Buffered() > 0 {
		return true, nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	_, err := c.r.Peek(1)
	if resetErr := c.conn.SetReadDeadline(time.Time{}); resetErr != nil && err == nil {
		return false, resetErr
	}
	if err != nil && isTimeout(err) {
		return false, nil
	}
	// EOF and connection errors count as readable; Read reports them.
	return true, nil
}

// WaitWritable reports true while the channel is open. The kernel send
// buffer cannot be polled portably; Write applies the per-step deadline.
func (c *NetChannel) WaitWritable(time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, ErrChannelClosed
	}
	return true, nil
}

// Read reads buffered bytes, or blocks on the connection if none are buffered.
func (c *NetChannel) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	return c.r.Read(p)
}

// Write writes as much of p as the connection accepts within one write step.
func (c *NetChannel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeStep)); err != nil {
		return 0, err
	}
	n, err := c.conn.Write(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Close closes the underlying connection.
func (c *NetChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *NetChannel) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

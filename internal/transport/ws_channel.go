package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsInboxSize    = 64
)

// WSChannel adapts a gorilla WebSocket connection to Channel. Inbound binary
// messages are concatenated into a byte stream, so a frame may span several
// messages. Every Write is sent as one binary message.
type WSChannel struct {
	conn       *websocket.Conn
	remoteAddr string

	inbox   chan []byte
	done    chan struct{}
	pending []byte
	eof     bool

	wmu       sync.Mutex
	closeOnce sync.Once
}

// NewWSChannel wraps conn and starts its read and keepalive pumps.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		inbox:      make(chan []byte, wsInboxSize),
		done:       make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go c.readPump()
	go c.pingPump()
	return c
}

// DialWS connects to a broadcaster WebSocket endpoint such as ws://host:port/ws.
func DialWS(ctx context.Context, url string) (*WSChannel, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWSChannel(conn), nil
}

// readPump moves binary messages into the inbox until the connection fails.
func (c *WSChannel) readPump() {
	defer close(c.inbox)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if mt != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		select {
		case c.inbox <- data:
		case <-c.done:
			return
		}
	}
}

// pingPump keeps the connection alive while it is open.
func (c *WSChannel) pingPump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// WaitReadable waits for buffered bytes or the next inbound message.
func (c *WSChannel) WaitReadable(timeout time.Duration) (bool, error) {
	if len(c.pending) > 0 || c.eof {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-c.inbox:
		if !ok {
			c.eof = true
			return true, nil
		}
		c.pending = msg
		return true, nil
	case <-timer.C:
		return false, nil
	case <-c.done:
		return false, ErrChannelClosed
	}
}

// WaitWritable reports true while the channel is open.
func (c *WSChannel) WaitWritable(time.Duration) (bool, error) {
	select {
	case <-c.done:
		return false, ErrChannelClosed
	default:
		return true, nil
	}
}

// Read copies buffered message bytes into p, blocking for the next message
// when nothing is buffered.
func (c *WSChannel) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		select {
		case msg, ok := <-c.inbox:
			if !ok {
				c.eof = true
				return 0, io.EOF
			}
			c.pending = msg
		case <-c.done:
			return 0, ErrChannelClosed
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write sends p as a single binary message.
func (c *WSChannel) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.done:
		return 0, ErrChannelClosed
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal close message and closes the connection.
func (c *WSChannel) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a specific WebSocket close code.
func (c *WSChannel) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		message := websocket.FormatCloseMessage(code, reason)
		c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *WSChannel) RemoteAddr() string {
	return c.remoteAddr
}

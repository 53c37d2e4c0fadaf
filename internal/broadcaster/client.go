package broadcaster

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/protocol"
	"github.com/luciancaetano/scenecast/internal/transport"
)

var (
	errConnectionClosed = errors.New(scenecast.ErrConnectionClosed)
	errContextCancelled = errors.New(scenecast.ErrContextCancelled)
	errSendQueueFull    = errors.New(scenecast.ErrSendQueueFull)
)

// Client implements the scenecast.Client interface on top of a transport
// endpoint. Outbound commands are queued in batches and written by a single
// write pump, so a room replay and the forwards that follow it stay in order.
type Client struct {
	id          string
	endpoint    *transport.Endpoint
	remoteAddr  string
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []*protocol.Command
	mu          sync.RWMutex
	closed      bool
	roomMu      sync.RWMutex
	room        string
	rateLimiter *rate.Limiter // Rate limiter for incoming commands
}

// NewClient wraps endpoint and starts its write pump.
func NewClient(endpoint *transport.Endpoint, rateLimitConfig *RateLimitConfig, queueSize int, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	id := uuid.New().String()
	remoteAddr := endpoint.Channel().RemoteAddr()
	client := &Client{
		id:          id,
		endpoint:    endpoint,
		remoteAddr:  remoteAddr,
		log:         log.With(zap.String("client_id", id), zap.String("remote_addr", remoteAddr)),
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []*protocol.Command, queueSize),
		rateLimiter: limiter,
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Room returns the name of the client's room, or "" when it is in none.
func (c *Client) Room() string {
	c.roomMu.RLock()
	defer c.roomMu.RUnlock()
	return c.room
}

// setRoom is called by Rooms with the registry lock held.
func (c *Client) setRoom(name string) {
	c.roomMu.Lock()
	c.room = name
	c.roomMu.Unlock()
}

// Send queues cmd, waiting for queue space until ctx or the client is done.
func (c *Client) Send(ctx context.Context, cmd *protocol.Command) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.sendCh <- []*protocol.Command{cmd}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errContextCancelled
	}
}

// enqueue queues a batch without blocking. Room fan-out calls it while
// holding the registry lock, so a full queue is reported instead of waited on.
func (c *Client) enqueue(batch []*protocol.Command) error {
	if len(batch) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.sendCh <- batch:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close closes the client connection
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection. WebSocket peers receive code and
// reason in a close frame; raw TCP peers are simply disconnected.
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	// Cancel first so a Send blocked on a full queue releases its read lock.
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.sendCh)

	if ws, ok := c.endpoint.Channel().(*transport.WSChannel); ok {
		return ws.CloseWithCode(code, reason)
	}
	return c.endpoint.Close()
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit checks if the client has exceeded the rate limit
// Returns true if the command is allowed, false if rate limited
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump drains the send queue onto the endpoint until the queue is
// closed or a send fails.
func (c *Client) writePump() {
	for batch := range c.sendCh {
		for _, cmd := range batch {
			if c.ctx.Err() != nil {
				continue
			}
			if err := c.endpoint.Send(cmd); err != nil {
				c.log.Debug("send failed, closing client",
					zap.Stringer("type", cmd.Type), zap.Error(err))
				go c.Close(context.Background())
				continue
			}
		}
	}
}

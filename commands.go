package scenecast

import "time"

// Standard error messages
const (
	// Protocol errors
	ErrInvalidMessageFormat = "invalid message format"
	ErrUnknownMessageType   = "unknown message type"
	ErrReservedMessageType  = "message type is handled by the server"
	ErrRateLimitExceeded    = "rate limit exceeded"

	// Connection errors
	ErrClientNotFound       = "client not found"
	ErrConnectionClosed     = "client connection is closed"
	ErrContextCancelled     = "client context cancelled"
	ErrSendQueueFull        = "client send queue is full"
	ErrServerAlreadyRunning = "server already running"
)

// Default listener addresses.
const (
	DefaultTCPAddress  = "0.0.0.0:12800"
	DefaultHTTPAddress = "0.0.0.0:12801"
)

// Server defaults shared by the broadcaster and its configuration file.
const (
	// DefaultSendQueueSize is the number of pending outbound batches a client
	// may accumulate before it is considered stalled.
	DefaultSendQueueSize = 256

	// DefaultPollTimeout is how long a client's read loop waits for input
	// before checking whether the client is still alive.
	DefaultPollTimeout = 50 * time.Millisecond
)

// HTTP paths served next to the raw TCP listener.
const (
	WebSocketPath = "/ws"
	MetricsPath   = "/metrics"
)

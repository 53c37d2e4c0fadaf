package protocol

import "errors"

// Error kinds surfaced by the codecs and by the transport layer. Callers match
// them with errors.Is; the returned errors usually wrap one of these with context.
var (
	// ErrPeerDisconnected reports that the remote end went away: a short header
	// read, a closed channel or any I/O failure while moving frame bytes.
	ErrPeerDisconnected = errors.New("protocol: peer disconnected")

	// ErrMalformedFrame reports a header whose fields cannot describe a valid
	// frame, such as a payload length above the configured maximum.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrUnknownMessageType reports a type code outside the MessageType set.
	ErrUnknownMessageType = errors.New("protocol: unknown message type")

	// ErrMalformedPayload reports a payload field that would read past the end
	// of the buffer, or that does not hold what its schema promises.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

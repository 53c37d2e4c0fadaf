// Package transport moves protocol commands over byte channels.
//
// A Channel is a byte stream that can be polled for readiness. Endpoint turns
// the stream into whole commands and back, using the frame codec from the
// protocol package. NetChannel adapts a net.Conn and WSChannel a gorilla
// WebSocket connection, so the same Endpoint serves raw TCP peers and browser
// or editor plugins speaking WebSocket.
package transport

import (
	"errors"
	"time"
)

// Channel is a byte stream endpoint with readiness polling.
//
// WaitReadable and WaitWritable block for at most timeout. They report false
// with a nil error when the channel did not become ready in time. A channel
// whose peer has gone reports readable; the following Read returns the error.
//
// Write may accept fewer bytes than offered. A zero count with a nil error
// means the channel could not take more bytes yet.
type Channel interface {
	WaitReadable(timeout time.Duration) (bool, error)
	WaitWritable(timeout time.Duration) (bool, error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// ErrChannelClosed is returned by channel operations after Close.
var ErrChannelClosed = errors.New("transport: channel closed")

// errTimeout marks a bounded read or write that ran out of time.
var errTimeout = errors.New("transport: i/o timeout")

package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/scenecast/internal/metrics"
	"github.com/luciancaetano/scenecast/internal/protocol"
)

// Policy bounds the time an Endpoint may spend on a channel.
type Policy struct {
	// PollTimeout is how long TryReceive waits for the channel to become
	// readable before reporting that no message is available.
	PollTimeout time.Duration

	// ReadTimeout bounds the accumulation of a frame once its first byte has
	// arrived. Zero waits forever.
	ReadTimeout time.Duration

	// SendTimeout bounds Send. Zero waits forever.
	SendTimeout time.Duration

	// MaxPayload is the largest payload length accepted from a header.
	MaxPayload uint64
}

// DefaultPolicy returns the default timeouts and limits.
func DefaultPolicy() Policy {
	return Policy{
		PollTimeout: 100 * time.Microsecond,
		ReadTimeout: 30 * time.Second,
		SendTimeout: 10 * time.Second,
		MaxPayload:  protocol.DefaultMaxPayloadSize,
	}
}

// FrameLimit is the size of the largest frame the policy accepts, header
// included. A zero MaxPayload counts as the default.
func (p Policy) FrameLimit() int64 {
	maxPayload := p.MaxPayload
	if maxPayload == 0 {
		maxPayload = protocol.DefaultMaxPayloadSize
	}
	return int64(maxPayload) + protocol.HeaderSize
}

// EndpointConfig configures an Endpoint. Zero fields take defaults.
type EndpointConfig struct {
	IDs     *protocol.IDAllocator
	Policy  Policy
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Endpoint reads and writes whole commands on a Channel. TryReceive must be
// called from one goroutine at a time, and so must Send; the two may run
// concurrently with each other.
type Endpoint struct {
	ch      Channel
	ids     *protocol.IDAllocator
	policy  Policy
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewEndpoint wraps ch.
func NewEndpoint(ch Channel, cfg EndpointConfig) *Endpoint {
	policy := cfg.Policy
	defaults := DefaultPolicy()
	if policy.PollTimeout <= 0 {
		policy.PollTimeout = defaults.PollTimeout
	}
	if policy.MaxPayload == 0 {
		policy.MaxPayload = defaults.MaxPayload
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Endpoint{
		ch:      ch,
		ids:     cfg.IDs,
		policy:  policy,
		log:     log.With(zap.String("remote_addr", ch.RemoteAddr())),
		metrics: cfg.Metrics,
	}
}

// Channel returns the underlying channel.
func (e *Endpoint) Channel() Channel {
	return e.ch
}

// TryReceive returns the next command, or nil with a nil error when nothing
// is ready within the poll timeout. Once a frame has started arriving it is
// read to completion: a partial command is never returned.
func (e *Endpoint) TryReceive() (*protocol.Command, error) {
	ready, err := e.ch.WaitReadable(e.policy.PollTimeout)
	if err != nil {
		return nil, e.receiveFailed(fmt.Errorf("%w: poll: %v", protocol.ErrPeerDisconnected, err))
	}
	if !ready {
		return nil, nil
	}

	r := &channelReader{ch: e.ch, timeout: e.policy.ReadTimeout}
	if e.policy.ReadTimeout > 0 {
		r.deadline = time.Now().Add(e.policy.ReadTimeout)
	}

	header := make([]byte, protocol.HeaderSize)
	if n, err := io.ReadFull(r, header); err != nil {
		return nil, e.receiveFailed(fmt.Errorf("%w: header read returned %d of %d bytes: %v",
			protocol.ErrPeerDisconnected, n, protocol.HeaderSize, err))
	}

	cmd, err := protocol.ParseFrame(header, r, e.ids, e.policy.MaxPayload)
	if err != nil {
		return nil, e.receiveFailed(err)
	}

	e.metrics.FrameReceived(cmd.Type, protocol.HeaderSize+len(cmd.Data))
	return cmd, nil
}

// Send writes cmd in full. A channel that does not accept the whole frame
// within the send timeout is reported as disconnected.
func (e *Endpoint) Send(cmd *protocol.Command) error {
	buf, err := protocol.Serialize(cmd)
	if err != nil {
		return err
	}

	var deadline time.Time
	if e.policy.SendTimeout > 0 {
		deadline = time.Now().Add(e.policy.SendTimeout)
	}

	for sent := 0; sent < len(buf); {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return e.sendFailed(cmd, fmt.Errorf("%w: send timed out after %d of %d bytes",
				protocol.ErrPeerDisconnected, sent, len(buf)))
		}

		ready, err := e.ch.WaitWritable(e.policy.PollTimeout)
		if err != nil {
			return e.sendFailed(cmd, fmt.Errorf("%w: poll: %v", protocol.ErrPeerDisconnected, err))
		}
		if !ready {
			continue
		}

		n, err := e.ch.Write(buf[sent:])
		if err != nil {
			return e.sendFailed(cmd, fmt.Errorf("%w: write: %v", protocol.ErrPeerDisconnected, err))
		}
		sent += n
	}

	e.metrics.FrameSent(cmd.Type, len(buf))
	return nil
}

// Close closes the channel.
func (e *Endpoint) Close() error {
	return e.ch.Close()
}

func (e *Endpoint) receiveFailed(err error) error {
	e.metrics.Error(errorKind(err))
	e.log.Debug("receive failed", zap.Error(err))
	return err
}

func (e *Endpoint) sendFailed(cmd *protocol.Command, err error) error {
	e.metrics.Error(errorKind(err))
	e.log.Debug("send failed",
		zap.Stringer("type", cmd.Type),
		zap.Uint32("command_id", cmd.ID),
		zap.Error(err))
	return err
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, protocol.ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "peer_disconnected"
	}
}

// channelReader reads from a Channel, waiting for readiness before each read
// until the deadline passes.
type channelReader struct {
	ch       Channel
	timeout  time.Duration
	deadline time.Time
}

const unboundedWaitStep = time.Second

func (r *channelReader) Read(p []byte) (int, error) {
	for {
		wait := unboundedWaitStep
		if !r.deadline.IsZero() {
			wait = time.Until(r.deadline)
			if wait <= 0 {
				return 0, fmt.Errorf("%w after %s", errTimeout, r.timeout)
			}
		}

		ready, err := r.ch.WaitReadable(wait)
		if err != nil {
			return 0, err
		}
		if !ready {
			continue
		}

		// A readable channel that yields no bytes has reached end of stream.
		n, err := r.ch.Read(p)
		if n == 0 && err == nil {
			return 0, io.EOF
		}
		return n, err
	}
}

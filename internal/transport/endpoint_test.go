package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luciancaetano/scenecast/internal/protocol"
)

// fakeChannel is a scripted Channel. Each Read returns at most one queued chunk.
type fakeChannel struct {
	mu         sync.Mutex
	chunks     [][]byte
	eof        bool
	readErr    error
	written    bytes.Buffer
	writeLimit int
	unwritable bool
	closed     bool
}

func (c *fakeChannel) WaitReadable(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	ready := len(c.chunks) > 0 || c.eof || c.readErr != nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return false, ErrChannelClosed
	}
	if !ready {
		time.Sleep(min(timeout, time.Millisecond))
	}
	return ready, nil
}

func (c *fakeChannel) WaitWritable(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrChannelClosed
	}
	return !c.unwritable, nil
}

func (c *fakeChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeLimit > 0 && len(p) > c.writeLimit {
		p = p[:c.writeLimit]
	}
	return c.written.Write(p)
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) RemoteAddr() string { return "fake:0" }

func mustSerialize(t *testing.T, cmd *protocol.Command) []byte {
	t.Helper()
	b, err := protocol.Serialize(cmd)
	if err != nil {
		t.Fatalf("Serialize() failed: %v", err)
	}
	return b
}

// split cuts b into chunks of at most size bytes.
func split(b []byte, size int) [][]byte {
	var chunks [][]byte
	for len(b) > size {
		chunks = append(chunks, b[:size])
		b = b[size:]
	}
	return append(chunks, b)
}

// TestTryReceiveNoMessage tests that an idle channel reports no message without error
func TestTryReceiveNoMessage(t *testing.T) {
	t.Parallel()

	ep := NewEndpoint(&fakeChannel{}, EndpointConfig{})

	start := time.Now()
	cmd, err := ep.TryReceive()
	if err != nil {
		t.Fatalf("TryReceive() error = %v", err)
	}
	if cmd != nil {
		t.Errorf("TryReceive() = %+v, want nil", cmd)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("TryReceive() blocked for %s", elapsed)
	}
}

// TestTryReceiveDisconnect tests the disconnect cases of the header read
func TestTryReceiveDisconnect(t *testing.T) {
	t.Parallel()

	frame := mustSerialize(t, &protocol.Command{Type: protocol.Transform, ID: 1, Data: []byte("xyz")})

	tests := []struct {
		name string
		ch   *fakeChannel
	}{
		{"zero bytes", &fakeChannel{eof: true}},
		{"partial header", &fakeChannel{chunks: [][]byte{frame[:5]}, eof: true}},
		{"read error in header", &fakeChannel{chunks: [][]byte{frame[:3]}, readErr: errors.New("connection reset")}},
		{"read error in payload", &fakeChannel{chunks: [][]byte{frame[:protocol.HeaderSize+1]}, readErr: errors.New("connection reset")}},
		{"payload cut short", &fakeChannel{chunks: [][]byte{frame[:len(frame)-1]}, eof: true}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ep := NewEndpoint(tt.ch, EndpointConfig{})
			cmd, err := ep.TryReceive()
			if !errors.Is(err, protocol.ErrPeerDisconnected) {
				t.Errorf("TryReceive() error = %v, want ErrPeerDisconnected", err)
			}
			if cmd != nil {
				t.Errorf("TryReceive() returned partial command %+v", cmd)
			}
		})
	}
}

// TestTryReceiveFragmented tests that payload accumulation tolerates short reads
func TestTryReceiveFragmented(t *testing.T) {
	t.Parallel()

	want := &protocol.Command{Type: protocol.Mesh, ID: 77, Data: bytes.Repeat([]byte{0xAB}, 1000)}
	frame := mustSerialize(t, want)

	for _, size := range []int{1, 7, 13, 14, 15, 512} {
		ch := &fakeChannel{chunks: split(frame, size)}
		ep := NewEndpoint(ch, EndpointConfig{})

		got, err := ep.TryReceive()
		if err != nil {
			t.Fatalf("chunk %d: TryReceive() error = %v", size, err)
		}
		if got.Type != want.Type || got.ID != want.ID || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("chunk %d: got type %v id %d len %d", size, got.Type, got.ID, len(got.Data))
		}
	}
}

// TestTryReceiveSequence tests that consecutive frames are returned in send order
func TestTryReceiveSequence(t *testing.T) {
	t.Parallel()

	var stream []byte
	for i := uint32(1); i <= 3; i++ {
		stream = append(stream, mustSerialize(t, &protocol.Command{Type: protocol.Rename, ID: i, Data: protocol.EncodeString("obj")})...)
	}

	ep := NewEndpoint(&fakeChannel{chunks: split(stream, 9)}, EndpointConfig{})
	for i := uint32(1); i <= 3; i++ {
		cmd, err := ep.TryReceive()
		if err != nil {
			t.Fatalf("frame %d: error = %v", i, err)
		}
		if cmd.ID != i {
			t.Errorf("frame %d: ID = %d", i, cmd.ID)
		}
	}

	if cmd, err := ep.TryReceive(); cmd != nil || err != nil {
		t.Errorf("drained channel: TryReceive() = %+v, %v", cmd, err)
	}
}

// TestTryReceiveErrorKinds tests that decode failures keep their own kinds
func TestTryReceiveErrorKinds(t *testing.T) {
	t.Parallel()

	unknown := mustSerialize(t, &protocol.Command{Type: protocol.Light, ID: 1, Data: []byte{1, 2}})
	unknown[12], unknown[13] = 0xF0, 0x00

	oversize := mustSerialize(t, &protocol.Command{Type: protocol.Texture, ID: 2, Data: make([]byte, 64)})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		next := mustSerialize(t, &protocol.Command{Type: protocol.Camera, ID: 3})
		ep := NewEndpoint(&fakeChannel{chunks: [][]byte{unknown, next}}, EndpointConfig{})

		if _, err := ep.TryReceive(); !errors.Is(err, protocol.ErrUnknownMessageType) {
			t.Fatalf("error = %v, want ErrUnknownMessageType", err)
		}
		cmd, err := ep.TryReceive()
		if err != nil || cmd.ID != 3 {
			t.Errorf("next frame = %+v, %v", cmd, err)
		}
	})

	t.Run("payload above maximum", func(t *testing.T) {
		t.Parallel()

		ep := NewEndpoint(&fakeChannel{chunks: [][]byte{oversize}}, EndpointConfig{
			Policy: Policy{MaxPayload: 32},
		})
		if _, err := ep.TryReceive(); !errors.Is(err, protocol.ErrMalformedFrame) {
			t.Errorf("error = %v, want ErrMalformedFrame", err)
		}
	})
}

// TestTryReceiveReadTimeout tests that a stalled payload is bounded by the read timeout
func TestTryReceiveReadTimeout(t *testing.T) {
	t.Parallel()

	frame := mustSerialize(t, &protocol.Command{Type: protocol.Mesh, ID: 1, Data: make([]byte, 10)})
	ch := &fakeChannel{chunks: [][]byte{frame[:protocol.HeaderSize+2]}}

	ep := NewEndpoint(ch, EndpointConfig{Policy: Policy{ReadTimeout: 20 * time.Millisecond}})

	start := time.Now()
	_, err := ep.TryReceive()
	if !errors.Is(err, protocol.ErrPeerDisconnected) {
		t.Errorf("error = %v, want ErrPeerDisconnected", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("TryReceive() took %s", elapsed)
	}
}

// TestTryReceiveAssignsZeroID tests that inbound id 0 is drawn from the allocator
func TestTryReceiveAssignsZeroID(t *testing.T) {
	t.Parallel()

	frame := mustSerialize(t, &protocol.Command{Type: protocol.Transform, ID: 0})
	ids := protocol.NewIDAllocator(protocol.FirstCommandID)
	ep := NewEndpoint(&fakeChannel{chunks: [][]byte{frame}}, EndpointConfig{IDs: ids})

	cmd, err := ep.TryReceive()
	if err != nil {
		t.Fatal(err)
	}
	if cmd.ID != protocol.FirstCommandID {
		t.Errorf("ID = %d, want %d", cmd.ID, protocol.FirstCommandID)
	}
}

// TestSendPartialWrites tests that Send advances through partial writes
func TestSendPartialWrites(t *testing.T) {
	t.Parallel()

	cmd := &protocol.Command{Type: protocol.Material, ID: 5, Data: bytes.Repeat([]byte("m"), 100)}
	ch := &fakeChannel{writeLimit: 3}
	ep := NewEndpoint(ch, EndpointConfig{})

	if err := ep.Send(cmd); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !bytes.Equal(ch.written.Bytes(), mustSerialize(t, cmd)) {
		t.Errorf("written bytes differ from serialized frame")
	}
}

// TestSendTimeout tests that a never-writable channel is reported as disconnected
func TestSendTimeout(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{unwritable: true}
	ep := NewEndpoint(ch, EndpointConfig{Policy: Policy{SendTimeout: 20 * time.Millisecond}})

	err := ep.Send(&protocol.Command{Type: protocol.Delete, ID: 1})
	if !errors.Is(err, protocol.ErrPeerDisconnected) {
		t.Errorf("Send() error = %v, want ErrPeerDisconnected", err)
	}
}

// TestSendErrors tests failures surfaced by Send
func TestSendErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		ep := NewEndpoint(&fakeChannel{}, EndpointConfig{})
		if err := ep.Send(&protocol.Command{Type: 7000, ID: 1}); !errors.Is(err, protocol.ErrUnknownMessageType) {
			t.Errorf("error = %v, want ErrUnknownMessageType", err)
		}
	})

	t.Run("closed channel", func(t *testing.T) {
		t.Parallel()

		ch := &fakeChannel{}
		ep := NewEndpoint(ch, EndpointConfig{})
		if err := ep.Close(); err != nil {
			t.Fatal(err)
		}
		if err := ep.Send(&protocol.Command{Type: protocol.Delete, ID: 1}); !errors.Is(err, protocol.ErrPeerDisconnected) {
			t.Errorf("error = %v, want ErrPeerDisconnected", err)
		}
		if _, err := ep.TryReceive(); !errors.Is(err, protocol.ErrPeerDisconnected) {
			t.Errorf("TryReceive() error = %v, want ErrPeerDisconnected", err)
		}
	})
}

// TestDefaultPolicy tests the default limits
func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	if p.PollTimeout != 100*time.Microsecond {
		t.Errorf("PollTimeout = %s", p.PollTimeout)
	}
	if p.SendTimeout <= 0 || p.ReadTimeout <= 0 {
		t.Errorf("timeouts must be bounded: %+v", p)
	}
	if p.MaxPayload != protocol.DefaultMaxPayloadSize {
		t.Errorf("MaxPayload = %d", p.MaxPayload)
	}
}

// BenchmarkTryReceive benchmarks receiving a small frame
func BenchmarkTryReceive(b *testing.B) {
	frame, _ := protocol.Serialize(&protocol.Command{Type: protocol.Transform, ID: 1, Data: make([]byte, 64)})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ep := NewEndpoint(&fakeChannel{chunks: [][]byte{append([]byte(nil), frame...)}}, EndpointConfig{})
		_, _ = ep.TryReceive()
	}
}

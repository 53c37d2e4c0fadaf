package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed width of a frame header.
	HeaderSize = 14

	// DefaultMaxPayloadSize bounds the payload length accepted from a header.
	DefaultMaxPayloadSize = 256 * 1024 * 1024

	// payloadChunk caps the buffer reserved before any payload byte arrives.
	// Larger payloads grow as bytes are actually read.
	payloadChunk = 64 * 1024
)

// Header is the decoded fixed part of a frame.
//
// Wire format (all fields little-endian):
//
//	[8 bytes: payload length][4 bytes: command id][2 bytes: type code][payload]
type Header struct {
	Length uint64
	ID     uint32
	Code   uint16
}

// Serialize encodes cmd as a header followed by its payload.
func Serialize(cmd *Command) ([]byte, error) {
	if !cmd.Type.Valid() {
		return nil, fmt.Errorf("serialize command %d: %w: %d", cmd.ID, ErrUnknownMessageType, uint16(cmd.Type))
	}

	out := make([]byte, HeaderSize+len(cmd.Data))
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(cmd.Data)))
	binary.LittleEndian.PutUint32(out[8:12], cmd.ID)
	binary.LittleEndian.PutUint16(out[12:14], uint16(cmd.Type))
	copy(out[HeaderSize:], cmd.Data)
	return out, nil
}

// ParseHeader splits the first HeaderSize bytes of b into header fields.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrMalformedFrame, len(b), HeaderSize)
	}
	return Header{
		Length: binary.LittleEndian.Uint64(b[0:8]),
		ID:     binary.LittleEndian.Uint32(b[8:12]),
		Code:   binary.LittleEndian.Uint16(b[12:14]),
	}, nil
}

// ParseFrame reads the payload announced by header from r and assembles the
// command. Inbound id 0 is replaced through ids, like any other construction.
//
// When the type code is unknown the payload is still consumed so that the
// next frame on r starts at a header boundary. A payload source that ends
// early is reported as ErrPeerDisconnected.
func ParseFrame(header []byte, r io.Reader, ids *IDAllocator, maxPayload uint64) (*Command, error) {
	h, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}
	if h.Length > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d exceeds maximum %d", ErrMalformedFrame, h.Length, maxPayload)
	}

	t, typeErr := ParseMessageType(uint64(h.Code))
	if typeErr != nil {
		if _, err := io.CopyN(io.Discard, r, int64(h.Length)); err != nil {
			return nil, fmt.Errorf("%w: discard payload: %v", ErrPeerDisconnected, err)
		}
		return nil, fmt.Errorf("frame %d: %w", h.ID, typeErr)
	}

	data, err := readPayload(r, h.Length)
	if err != nil {
		return nil, fmt.Errorf("%w: read payload (%d bytes): %v", ErrPeerDisconnected, h.Length, err)
	}
	return ids.NewCommand(t, data, h.ID), nil
}

// readPayload reads exactly n bytes from r. Memory is committed as bytes
// arrive, so a header announcing a large length costs nothing until the
// payload is actually sent.
func readPayload(r io.Reader, n uint64) ([]byte, error) {
	if n <= payloadChunk {
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	var buf bytes.Buffer
	buf.Grow(payloadChunk)
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses one complete frame held in data, as produced by Serialize.
// Trailing bytes after the payload are an error.
func Decode(data []byte, ids *IDAllocator) (*Command, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: frame is %d bytes, want at least %d", ErrMalformedFrame, len(data), HeaderSize)
	}
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Length != uint64(len(data)-HeaderSize) {
		return nil, fmt.Errorf("%w: header announces %d payload bytes, frame holds %d",
			ErrMalformedFrame, h.Length, len(data)-HeaderSize)
	}
	return ParseFrame(data[:HeaderSize], bytes.NewReader(data[HeaderSize:]), ids, h.Length)
}

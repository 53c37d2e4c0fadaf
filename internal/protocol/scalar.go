package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Width of every fixed-size scalar on the wire.
const scalarSize = 4

// Vector2 is a two-component float vector.
type Vector2 struct {
	X, Y float32
}

// Vector3 is a three-component float vector.
type Vector3 struct {
	X, Y, Z float32
}

// Vector4 is a four-component float vector.
type Vector4 struct {
	X, Y, Z, W float32
}

// Color is an RGBA color. It always travels as four floats.
type Color struct {
	R, G, B, A float32
}

// Encoder appends little-endian encoded values to an internal buffer.
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded bytes. The slice is valid until the next Reset.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Reset empties the encoder, keeping the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// WriteBool appends b as a 4-byte integer, 1 for true and 0 for false.
func (e *Encoder) WriteBool(b bool) {
	var v uint32
	if b {
		v = 1
	}
	e.WriteUint32(v)
}

// WriteUint32 appends v in 4 bytes.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// WriteFloat32 appends v as an IEEE 754 single in 4 bytes.
func (e *Encoder) WriteFloat32(v float32) {
	e.WriteUint32(math.Float32bits(v))
}

// WriteString appends the UTF-8 byte count followed by the bytes of s.
func (e *Encoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteVector2 appends x, y.
func (e *Encoder) WriteVector2(v Vector2) {
	e.WriteFloat32(v.X)
	e.WriteFloat32(v.Y)
}

// WriteVector3 appends x, y, z.
func (e *Encoder) WriteVector3(v Vector3) {
	e.WriteFloat32(v.X)
	e.WriteFloat32(v.Y)
	e.WriteFloat32(v.Z)
}

// WriteVector4 appends x, y, z, w.
func (e *Encoder) WriteVector4(v Vector4) {
	e.WriteFloat32(v.X)
	e.WriteFloat32(v.Y)
	e.WriteFloat32(v.Z)
	e.WriteFloat32(v.W)
}

// WriteColor appends r, g, b, a.
func (e *Encoder) WriteColor(c Color) {
	e.WriteFloat32(c.R)
	e.WriteFloat32(c.G)
	e.WriteFloat32(c.B)
	e.WriteFloat32(c.A)
}

// WriteBytes appends raw bytes without a length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

func encodeWith(fn func(e *Encoder)) []byte {
	var e Encoder
	fn(&e)
	return e.Bytes()
}

// EncodeBool encodes b as 4 bytes.
func EncodeBool(b bool) []byte {
	return encodeWith(func(e *Encoder) { e.WriteBool(b) })
}

// EncodeUint32 encodes v as 4 bytes.
func EncodeUint32(v uint32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteUint32(v) })
}

// EncodeFloat32 encodes v as 4 bytes.
func EncodeFloat32(v float32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteFloat32(v) })
}

// EncodeString encodes s with its 4-byte length prefix.
func EncodeString(s string) []byte {
	return encodeWith(func(e *Encoder) { e.WriteString(s) })
}

// EncodeVector2 encodes v as 2 floats.
func EncodeVector2(v Vector2) []byte {
	return encodeWith(func(e *Encoder) { e.WriteVector2(v) })
}

// EncodeVector3 encodes v as 3 floats.
func EncodeVector3(v Vector3) []byte {
	return encodeWith(func(e *Encoder) { e.WriteVector3(v) })
}

// EncodeVector4 encodes v as 4 floats.
func EncodeVector4(v Vector4) []byte {
	return encodeWith(func(e *Encoder) { e.WriteVector4(v) })
}

// EncodeColor encodes an RGB or RGBA color as 4 floats. Alpha defaults to 1.0
// when only three components are given.
func EncodeColor(components ...float32) ([]byte, error) {
	c, err := NewColor(components...)
	if err != nil {
		return nil, err
	}
	return encodeWith(func(e *Encoder) { e.WriteColor(c) }), nil
}

// NewColor builds a Color from 3 or 4 components.
func NewColor(components ...float32) (Color, error) {
	switch len(components) {
	case 3:
		return Color{R: components[0], G: components[1], B: components[2], A: 1.0}, nil
	case 4:
		return Color{R: components[0], G: components[1], B: components[2], A: components[3]}, nil
	default:
		return Color{}, fmt.Errorf("%w: color needs 3 or 4 components, got %d", ErrMalformedPayload, len(components))
	}
}

// field returns the n bytes at offset, or ErrMalformedPayload when they are not
// all inside data.
func field(data []byte, offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset > len(data) || len(data)-offset < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedPayload, n, offset, len(data))
	}
	return data[offset : offset+n], nil
}

// DecodeUint32 reads a 4-byte unsigned integer at offset.
func DecodeUint32(data []byte, offset int) (uint32, int, error) {
	b, err := field(data, offset, scalarSize)
	if err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint32(b), offset + scalarSize, nil
}

// DecodeBool reads a 4-byte boolean at offset. Only the value 1 decodes to true.
func DecodeBool(data []byte, offset int) (bool, int, error) {
	v, next, err := DecodeUint32(data, offset)
	if err != nil {
		return false, offset, err
	}
	return v == 1, next, nil
}

// DecodeFloat32 reads a 4-byte float at offset.
func DecodeFloat32(data []byte, offset int) (float32, int, error) {
	v, next, err := DecodeUint32(data, offset)
	if err != nil {
		return 0, offset, err
	}
	return math.Float32frombits(v), next, nil
}

// DecodeString reads a length-prefixed UTF-8 string at offset.
func DecodeString(data []byte, offset int) (string, int, error) {
	n, start, err := DecodeUint32(data, offset)
	if err != nil {
		return "", offset, err
	}
	if uint64(n) > uint64(len(data)-start) {
		return "", offset, fmt.Errorf("%w: string length %d exceeds %d remaining bytes", ErrMalformedPayload, n, len(data)-start)
	}
	b := data[start : start+int(n)]
	if !utf8.Valid(b) {
		return "", offset, fmt.Errorf("%w: string at offset %d is not valid UTF-8", ErrMalformedPayload, offset)
	}
	return string(b), start + int(n), nil
}

// decodeFloats reads len(dst) consecutive floats at offset.
func decodeFloats(data []byte, offset int, dst []float32) (int, error) {
	b, err := field(data, offset, len(dst)*scalarSize)
	if err != nil {
		return offset, err
	}
	readFloats(b, dst)
	return offset + len(b), nil
}

// DecodeVector2 reads 2 floats at offset.
func DecodeVector2(data []byte, offset int) (Vector2, int, error) {
	var f [2]float32
	next, err := decodeFloats(data, offset, f[:])
	if err != nil {
		return Vector2{}, offset, err
	}
	return Vector2{X: f[0], Y: f[1]}, next, nil
}

// DecodeVector3 reads 3 floats at offset.
func DecodeVector3(data []byte, offset int) (Vector3, int, error) {
	var f [3]float32
	next, err := decodeFloats(data, offset, f[:])
	if err != nil {
		return Vector3{}, offset, err
	}
	return Vector3{X: f[0], Y: f[1], Z: f[2]}, next, nil
}

// DecodeVector4 reads 4 floats at offset.
func DecodeVector4(data []byte, offset int) (Vector4, int, error) {
	var f [4]float32
	next, err := decodeFloats(data, offset, f[:])
	if err != nil {
		return Vector4{}, offset, err
	}
	return Vector4{X: f[0], Y: f[1], Z: f[2], W: f[3]}, next, nil
}

// DecodeColor reads 4 floats at offset as r, g, b, a.
func DecodeColor(data []byte, offset int) (Color, int, error) {
	var f [4]float32
	next, err := decodeFloats(data, offset, f[:])
	if err != nil {
		return Color{}, offset, err
	}
	return Color{R: f[0], G: f[1], B: f[2], A: f[3]}, next, nil
}

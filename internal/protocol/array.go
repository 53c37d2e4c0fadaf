package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxArrayCount bounds the element count accepted by the array decoders.
const MaxArrayCount = 1 << 24

// Arrays are a 4-byte element count followed by the elements. Fixed-width
// arrays decode into slices of fixed-arity tuples; arity 1 for scalar arrays.

func (e *Encoder) writeCount(n int) {
	e.WriteUint32(uint32(n))
}

func (e *Encoder) writeFloats(values []float32) {
	for _, v := range values {
		e.WriteFloat32(v)
	}
}

func (e *Encoder) writeUints(values []uint32) {
	for _, v := range values {
		e.WriteUint32(v)
	}
}

// WriteStringArray appends a count followed by length-prefixed strings.
func (e *Encoder) WriteStringArray(values []string) {
	e.writeCount(len(values))
	for _, s := range values {
		e.WriteString(s)
	}
}

// WriteFloatArray appends a count followed by one float per element.
func (e *Encoder) WriteFloatArray(values [][1]float32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeFloats(values[i][:])
	}
}

// WriteUintArray appends a count followed by one uint32 per element.
func (e *Encoder) WriteUintArray(values [][1]uint32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeUints(values[i][:])
	}
}

// WriteUint2Array appends a count followed by uint32 pairs.
func (e *Encoder) WriteUint2Array(values [][2]uint32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeUints(values[i][:])
	}
}

// WriteUint3Array appends a count followed by uint32 triples.
func (e *Encoder) WriteUint3Array(values [][3]uint32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeUints(values[i][:])
	}
}

// WriteVector2Array appends a count followed by float pairs.
func (e *Encoder) WriteVector2Array(values [][2]float32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeFloats(values[i][:])
	}
}

// WriteVector3Array appends a count followed by float triples.
func (e *Encoder) WriteVector3Array(values [][3]float32) {
	e.writeCount(len(values))
	for i := range values {
		e.writeFloats(values[i][:])
	}
}

// EncodeStringArray encodes values as a string array.
func EncodeStringArray(values []string) []byte {
	return encodeWith(func(e *Encoder) { e.WriteStringArray(values) })
}

// EncodeFloatArray encodes values as a float array.
func EncodeFloatArray(values [][1]float32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteFloatArray(values) })
}

// EncodeUintArray encodes values as a uint32 array.
func EncodeUintArray(values [][1]uint32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteUintArray(values) })
}

// EncodeUint2Array encodes values as an array of uint32 pairs.
func EncodeUint2Array(values [][2]uint32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteUint2Array(values) })
}

// EncodeUint3Array encodes values as an array of uint32 triples.
func EncodeUint3Array(values [][3]uint32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteUint3Array(values) })
}

// EncodeVector2Array encodes values as an array of float pairs.
func EncodeVector2Array(values [][2]float32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteVector2Array(values) })
}

// EncodeVector3Array encodes values as an array of float triples.
func EncodeVector3Array(values [][3]float32) []byte {
	return encodeWith(func(e *Encoder) { e.WriteVector3Array(values) })
}

// arrayHeader reads the element count at offset and checks that count elements
// of at least minWidth bytes each can fit in the rest of data.
func arrayHeader(data []byte, offset, minWidth int) (int, int, error) {
	n, start, err := DecodeUint32(data, offset)
	if err != nil {
		return 0, offset, err
	}
	if n > MaxArrayCount {
		return 0, offset, fmt.Errorf("%w: array count %d exceeds %d", ErrMalformedPayload, n, MaxArrayCount)
	}
	if uint64(n)*uint64(minWidth) > uint64(len(data)-start) {
		return 0, offset, fmt.Errorf("%w: %d elements of %d bytes exceed %d remaining bytes",
			ErrMalformedPayload, n, minWidth, len(data)-start)
	}
	return int(n), start, nil
}

// decodeArray decodes a fixed-stride array, calling fill with the bytes of each element.
func decodeArray[E any](data []byte, offset, stride int, fill func(b []byte, elem *E)) ([]E, int, error) {
	n, start, err := arrayHeader(data, offset, stride)
	if err != nil {
		return nil, offset, err
	}
	values := make([]E, n)
	for i := range values {
		fill(data[start+i*stride:start+(i+1)*stride], &values[i])
	}
	return values, start + n*stride, nil
}

func readFloats(b []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*scalarSize:]))
	}
}

func readUints(b []byte, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(b[i*scalarSize:])
	}
}

// DecodeStringArray reads a count followed by that many length-prefixed strings.
func DecodeStringArray(data []byte, offset int) ([]string, int, error) {
	n, pos, err := arrayHeader(data, offset, scalarSize)
	if err != nil {
		return nil, offset, err
	}
	values := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var s string
		s, pos, err = DecodeString(data, pos)
		if err != nil {
			return nil, offset, fmt.Errorf("string array element %d: %w", i, err)
		}
		values = append(values, s)
	}
	return values, pos, nil
}

// DecodeFloatArray reads a float array.
func DecodeFloatArray(data []byte, offset int) ([][1]float32, int, error) {
	return decodeArray(data, offset, scalarSize, func(b []byte, v *[1]float32) { readFloats(b, v[:]) })
}

// DecodeUintArray reads a uint32 array.
func DecodeUintArray(data []byte, offset int) ([][1]uint32, int, error) {
	return decodeArray(data, offset, scalarSize, func(b []byte, v *[1]uint32) { readUints(b, v[:]) })
}

// DecodeUint2Array reads an array of uint32 pairs.
func DecodeUint2Array(data []byte, offset int) ([][2]uint32, int, error) {
	return decodeArray(data, offset, 2*scalarSize, func(b []byte, v *[2]uint32) { readUints(b, v[:]) })
}

// DecodeUint3Array reads an array of uint32 triples.
func DecodeUint3Array(data []byte, offset int) ([][3]uint32, int, error) {
	return decodeArray(data, offset, 3*scalarSize, func(b []byte, v *[3]uint32) { readUints(b, v[:]) })
}

// DecodeVector2Array reads an array of float pairs.
func DecodeVector2Array(data []byte, offset int) ([][2]float32, int, error) {
	return decodeArray(data, offset, 2*scalarSize, func(b []byte, v *[2]float32) { readFloats(b, v[:]) })
}

// DecodeVector3Array reads an array of float triples.
func DecodeVector3Array(data []byte, offset int) ([][3]float32, int, error) {
	return decodeArray(data, offset, 3*scalarSize, func(b []byte, v *[3]float32) { readFloats(b, v[:]) })
}

package scenecast

import "github.com/luciancaetano/scenecast/internal/protocol"

// EncodeString encodes s as a length-prefixed UTF-8 payload field.
func EncodeString(s string) []byte {
	return protocol.EncodeString(s)
}

// DecodeString reads a string field at offset and returns it with the offset
// just past it.
func DecodeString(data []byte, offset int) (string, int, error) {
	return protocol.DecodeString(data, offset)
}

// EncodeStringArray encodes values as a count-prefixed array of strings.
func EncodeStringArray(values []string) []byte {
	return protocol.EncodeStringArray(values)
}

// DecodeStringArray reads a string array at offset.
func DecodeStringArray(data []byte, offset int) ([]string, int, error) {
	return protocol.DecodeStringArray(data, offset)
}

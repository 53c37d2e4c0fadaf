package protocol

import "fmt"

// LightType is the kind of a light carried in a Light payload. Values match
// the ones used by editor plugins and travel as 4-byte integers.
type LightType uint32

const (
	LightSpot  LightType = 0
	LightSun   LightType = 1
	LightPoint LightType = 2
)

var lightTypeNames = [...]string{"SPOT", "SUN", "POINT"}

func (l LightType) String() string {
	if l.Valid() {
		return lightTypeNames[l]
	}
	return fmt.Sprintf("LightType(%d)", uint32(l))
}

// Valid reports whether l is one of the enumerated light types.
func (l LightType) Valid() bool {
	return int(l) < len(lightTypeNames)
}

// SensorFitMode selects which sensor dimension a Camera payload's sensor size
// applies to.
type SensorFitMode uint32

const (
	SensorFitAuto       SensorFitMode = 0
	SensorFitVertical   SensorFitMode = 1
	SensorFitHorizontal SensorFitMode = 2
)

var sensorFitModeNames = [...]string{"AUTO", "VERTICAL", "HORIZONTAL"}

func (m SensorFitMode) String() string {
	if m.Valid() {
		return sensorFitModeNames[m]
	}
	return fmt.Sprintf("SensorFitMode(%d)", uint32(m))
}

// Valid reports whether m is one of the enumerated fit modes.
func (m SensorFitMode) Valid() bool {
	return int(m) < len(sensorFitModeNames)
}

// DecodeLightType reads a 4-byte light type at offset. Values outside the
// enumeration are ErrMalformedPayload.
func DecodeLightType(data []byte, offset int) (LightType, int, error) {
	v, next, err := DecodeUint32(data, offset)
	if err != nil {
		return 0, offset, err
	}
	if l := LightType(v); l.Valid() {
		return l, next, nil
	}
	return 0, offset, fmt.Errorf("%w: light type %d at offset %d", ErrMalformedPayload, v, offset)
}

// DecodeSensorFitMode reads a 4-byte sensor fit mode at offset. Values outside
// the enumeration are ErrMalformedPayload.
func DecodeSensorFitMode(data []byte, offset int) (SensorFitMode, int, error) {
	v, next, err := DecodeUint32(data, offset)
	if err != nil {
		return 0, offset, err
	}
	if m := SensorFitMode(v); m.Valid() {
		return m, next, nil
	}
	return 0, offset, fmt.Errorf("%w: sensor fit mode %d at offset %d", ErrMalformedPayload, v, offset)
}

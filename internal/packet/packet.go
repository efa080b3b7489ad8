package packet

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	// FrameSize is the size of a Sigfox uplink frame: three float32 values.
	FrameSize = 12
	// HexLength is the length of a frame rendered as hex.
	HexLength = FrameSize * 2

	precision = 4
)

type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= r.Min && v <= r.Max
}

//nolint:gochecknoglobals
var (
	TemperatureRange = Range{Min: -50, Max: 85}
	HumidityRange    = Range{Min: 0, Max: 100}
	PressureRange    = Range{Min: 300, Max: 1200}
)

// Reading holds the three sensor values of one frame, rounded to 4 decimals.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Packet is a decoded reading with its origin, as published to subscribers.
type Packet struct {
	Reading

	Device    string    `json:"device,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p Packet) String() string {
	return fmt.Sprintf("device=%s t=%.4f h=%.4f p=%.4f at=%s",
		p.Device, p.Temperature, p.Humidity, p.Pressure, p.Timestamp.Format(time.RFC3339))
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}

	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Clean removes every whitespace character from s.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, s)
}

func isHex(s string) bool {
	for i := range len(s) {
		c := s[i]

		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}

// Decode parses a 24 character hex payload into a Reading.
func Decode(payload string) (Reading, error) {
	cleaned := Clean(payload)

	if !isHex(cleaned) {
		return Reading{}, &Error{
			Kind: KindInvalidFormat,
			Msg:  fmt.Sprintf("invalid hex format: %q contains non-hex characters", cleaned),
		}
	}

	if len(cleaned) != HexLength {
		return Reading{}, &Error{
			Kind: KindInvalidLength,
			Msg:  fmt.Sprintf("invalid hex length: expected %d characters, got %d", HexLength, len(cleaned)),
		}
	}

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return Reading{}, &Error{Kind: KindInvalidFormat, Msg: fmt.Sprintf("invalid hex format: %v", err)}
	}

	return DecodeBytes(data)
}

// DecodeBytes reads temperature, humidity and pressure as little-endian
// float32 values at offsets 0, 4 and 8.
func DecodeBytes(data []byte) (Reading, error) {
	if len(data) != FrameSize {
		return Reading{}, &Error{
			Kind: KindInvalidLength,
			Msg:  fmt.Sprintf("invalid frame length: expected %d bytes, got %d", FrameSize, len(data)),
		}
	}

	var frame struct {
		Temperature float32
		Humidity    float32
		Pressure    float32
	}

	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &frame); err != nil {
		return Reading{}, fmt.Errorf("failed to read frame: %w", err)
	}

	temperature := float64(frame.Temperature)
	humidity := float64(frame.Humidity)
	pressure := float64(frame.Pressure)

	if err := ValidateRanges(temperature, humidity, pressure); err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: Round(temperature, precision),
		Humidity:    Round(humidity, precision),
		Pressure:    Round(pressure, precision),
	}, nil
}

// ValidateRanges reports every value outside its physical range in a single error.
func ValidateRanges(temperature, humidity, pressure float64) error {
	checks := []struct {
		field string
		value float64
		rng   Range
	}{
		{"temperature", temperature, TemperatureRange},
		{"humidity", humidity, HumidityRange},
		{"pressure", pressure, PressureRange},
	}

	var violations []Violation

	for _, c := range checks {
		if !c.rng.contains(c.value) {
			violations = append(violations, Violation{Field: c.field, Value: c.value, Range: c.rng})
		}
	}

	if len(violations) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.String())
	}

	return &Error{
		Kind:       KindOutOfRange,
		Msg:        "decoded values out of range: " + strings.Join(msgs, "; "),
		Violations: violations,
	}
}

// Encode renders a reading as a hex payload. It is the inverse of Decode
// for in-range values and is used by the simulator and tests.
func Encode(r Reading) string {
	buf := make([]byte, FrameSize)

	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(r.Temperature)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(r.Humidity)))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(float32(r.Pressure)))

	return hex.EncodeToString(buf)
}

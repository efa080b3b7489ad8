package sigfox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Number is a ground-truth value sent either as a JSON number or as a
// numeric string. Values of any other JSON type are kept verbatim and
// fail on conversion.
type Number struct {
	text string
}

func NewNumber(v float64) *Number {
	return &Number{text: strconv.FormatFloat(v, 'f', -1, 64)}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("number: %w", err)
		}

		n.text = strings.TrimSpace(s)

		return nil
	}

	n.text = string(b)

	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if _, err := decimal.NewFromString(n.text); err == nil {
		return []byte(n.text), nil
	}

	return json.Marshal(n.text)
}

func (n Number) String() string {
	return n.text
}

// Decimal parses the value.
func (n Number) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", n.text)
	}

	return d, nil
}

// Record is one entry returned by the Sigfox callback endpoint. A record
// either carries an encoded payload in HexData or directly reported
// ground-truth values, or both.
type Record struct {
	Device      string  `json:"device,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	HexData     string  `json:"hexData,omitempty"`
	Temperature *Number `json:"temperature,omitempty"`
	Humidity    *Number `json:"humidity,omitempty"`
	Pressure    *Number `json:"pressure,omitempty"`

	// Raw is the record exactly as received, unknown fields included.
	Raw json.RawMessage `json:"-"`
}

type recordAlias Record

func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}

	return json.Marshal(recordAlias(r))
}

func (r Record) HasHex() bool {
	return strings.TrimSpace(r.HexData) != ""
}

// HasGroundTruth reports whether all three reported values are present.
func (r Record) HasGroundTruth() bool {
	return r.Temperature != nil && r.Humidity != nil && r.Pressure != nil
}

//nolint:gochecknoglobals
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Time parses the ISO-8601 timestamp. Timestamps without a zone are UTC.
// A bare integer is taken as Unix milliseconds.
func (r Record) Time() (time.Time, bool) {
	ts := strings.TrimSpace(r.Timestamp)
	if ts == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}

	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}

	return time.Time{}, false
}

// Key identifies a record for de-duplication across polls.
func (r Record) Key() string {
	return r.Device + "|" + r.Timestamp + "|" + strings.ToLower(r.HexData)
}

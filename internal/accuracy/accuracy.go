// Package accuracy checks decoded payloads against ground-truth readings
// reported by the same device at nearly the same time.
package accuracy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/sigfox"
)

const (
	// Window is the exclusive upper bound on the timestamp distance of a pair.
	Window = 5000 * time.Millisecond

	diffPlaces = 4
	ratePlaces = 2
)

//nolint:gochecknoglobals
var (
	Tolerance = decimal.RequireFromString("0.01")
	hundred   = decimal.NewFromInt(100)

	errMissingField = errors.New("missing ground-truth field")
)

// Pair associates a record carrying a hex payload with a ground-truth record.
type Pair struct {
	Hex   sigfox.Record
	Truth sigfox.Record
}

type Matches struct {
	Temperature bool `json:"temperature"`
	Humidity    bool `json:"humidity"`
	Pressure    bool `json:"pressure"`
}

type Result struct {
	Device         string          `json:"device"`
	HexTimestamp   string          `json:"hexTimestamp"`
	TruthTimestamp string          `json:"groundTruthTimestamp"`
	HexData        string          `json:"hexData"`
	Decoded        *packet.Reading `json:"decoded"`
	Actual         *packet.Reading `json:"actual"`
	Differences    *packet.Reading `json:"differences"`
	Matches        Matches         `json:"matches"`
	IsAccurate     bool            `json:"isAccurate"`
	Error          string          `json:"error,omitempty"`
}

type Summary struct {
	Total         int    `json:"total"`
	AccurateCount int    `json:"accurateCount"`
	DecodeErrors  int    `json:"decodeErrors"`
	AccuracyRate  string `json:"accuracyRate"`
}

// Validator holds no mutable state and is safe for concurrent use.
type Validator struct {
	window    time.Duration
	tolerance decimal.Decimal
}

func New() Validator {
	return Validator{
		window:    Window,
		tolerance: Tolerance,
	}
}

// Pair matches every hex record with the first record in the set from the
// same device that carries all three ground-truth values and whose
// timestamp lies within the window. Candidates are not ranked: with
// several qualifying records the outcome depends on input order.
// Hex records without a match are left out.
func (v Validator) Pair(records []sigfox.Record) []Pair {
	var pairs []Pair

	for _, hexRec := range records {
		if !hexRec.HasHex() {
			continue
		}

		hexTime, ok := hexRec.Time()
		if !ok {
			continue
		}

		for _, truth := range records {
			if truth.Device != hexRec.Device || !truth.HasGroundTruth() {
				continue
			}

			truthTime, ok := truth.Time()
			if !ok {
				continue
			}

			if delta := hexTime.Sub(truthTime).Abs(); delta < v.window {
				pairs = append(pairs, Pair{Hex: hexRec, Truth: truth})

				break
			}
		}
	}

	return pairs
}

// Compare decodes the hex side of the pair and checks every field against
// the ground truth. Failures are reported in the result, never returned.
func (v Validator) Compare(p Pair) Result {
	res := Result{
		Device:         p.Hex.Device,
		HexTimestamp:   p.Hex.Timestamp,
		TruthTimestamp: p.Truth.Timestamp,
		HexData:        p.Hex.HexData,
	}

	decoded, err := packet.Decode(p.Hex.HexData)
	if err != nil {
		res.Error = err.Error()

		return res
	}

	res.Decoded = &decoded

	actual, err := groundTruth(p.Truth)
	if err != nil {
		res.Error = "invalid ground truth: " + err.Error()

		return res
	}

	tempDiff := v.diff(decoded.Temperature, actual[0])
	humDiff := v.diff(decoded.Humidity, actual[1])
	presDiff := v.diff(decoded.Pressure, actual[2])

	res.Actual = &packet.Reading{
		Temperature: actual[0].InexactFloat64(),
		Humidity:    actual[1].InexactFloat64(),
		Pressure:    actual[2].InexactFloat64(),
	}
	res.Differences = &packet.Reading{
		Temperature: tempDiff.InexactFloat64(),
		Humidity:    humDiff.InexactFloat64(),
		Pressure:    presDiff.InexactFloat64(),
	}
	res.Matches = Matches{
		Temperature: v.within(tempDiff),
		Humidity:    v.within(humDiff),
		Pressure:    v.within(presDiff),
	}
	res.IsAccurate = res.Matches.Temperature && res.Matches.Humidity && res.Matches.Pressure

	return res
}

func (v Validator) diff(decoded float64, actual decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(decoded).Sub(actual).Round(diffPlaces)
}

func (v Validator) within(diff decimal.Decimal) bool {
	return diff.Abs().LessThanOrEqual(v.tolerance)
}

func groundTruth(r sigfox.Record) ([3]decimal.Decimal, error) {
	var out [3]decimal.Decimal

	for i, n := range []*sigfox.Number{r.Temperature, r.Humidity, r.Pressure} {
		if n == nil {
			return out, errMissingField
		}

		d, err := n.Decimal()
		if err != nil {
			return out, err
		}

		out[i] = d
	}

	return out, nil
}

// Summarize reports the share of accurate results as a percentage with two
// decimals. An empty set has a rate of 0.00.
func (v Validator) Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}

	for _, r := range results {
		if r.IsAccurate {
			s.AccurateCount++
		}

		if r.Error != "" {
			s.DecodeErrors++
		}
	}

	rate := decimal.Zero
	if s.Total > 0 {
		rate = decimal.NewFromInt(int64(s.AccurateCount)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(s.Total)))
	}

	s.AccuracyRate = rate.StringFixed(ratePlaces)

	return s
}

// Validate pairs, compares and summarizes the whole record set.
func (v Validator) Validate(records []sigfox.Record) ([]Result, Summary) {
	pairs := v.Pair(records)
	results := make([]Result, 0, len(pairs))

	for _, p := range pairs {
		results = append(results, v.Compare(p))
	}

	return results, v.Summarize(results)
}

package accuracy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigfox-decoder/internal/accuracy"
	"sigfox-decoder/internal/packet"
	"sigfox-decoder/internal/sigfox"
)

const knownHex = "0000e840cdccc7424a3e8044"

//nolint:gochecknoglobals
var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func ts(offset time.Duration) string {
	return base.Add(offset).Format(time.RFC3339Nano)
}

func hexRecord(device string, offset time.Duration, hexData string) sigfox.Record {
	return sigfox.Record{Device: device, Timestamp: ts(offset), HexData: hexData}
}

func truthRecord(device string, offset time.Duration, t, h, p float64) sigfox.Record {
	return sigfox.Record{
		Device:      device,
		Timestamp:   ts(offset),
		Temperature: sigfox.NewNumber(t),
		Humidity:    sigfox.NewNumber(h),
		Pressure:    sigfox.NewNumber(p),
	}
}

func TestPairWindow(t *testing.T) {
	v := accuracy.New()

	within := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D1", 4999*time.Millisecond, 7.25, 99.9, 1025.9465),
	}
	require.Len(t, v.Pair(within), 1)

	before := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D1", -4999*time.Millisecond, 7.25, 99.9, 1025.9465),
	}
	require.Len(t, v.Pair(before), 1)

	outside := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D1", 5001*time.Millisecond, 7.25, 99.9, 1025.9465),
	}
	assert.Empty(t, v.Pair(outside))

	edge := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D1", 5000*time.Millisecond, 7.25, 99.9, 1025.9465),
	}
	assert.Empty(t, v.Pair(edge))
}

func TestPairRequiresSameDeviceAndAllFields(t *testing.T) {
	v := accuracy.New()

	partial := truthRecord("D1", time.Second, 7.25, 99.9, 1025.9465)
	partial.Pressure = nil

	records := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D2", time.Second, 7.25, 99.9, 1025.9465),
		partial,
		{Device: "D1", Temperature: sigfox.NewNumber(1), Humidity: sigfox.NewNumber(1), Pressure: sigfox.NewNumber(1)},
	}

	assert.Empty(t, v.Pair(records))
}

func TestPairFirstMatchWins(t *testing.T) {
	v := accuracy.New()

	first := truthRecord("D1", 3*time.Second, 1, 1, 1)
	closer := truthRecord("D1", time.Millisecond, 7.25, 99.9, 1025.9465)

	pairs := v.Pair([]sigfox.Record{hexRecord("D1", 0, knownHex), first, closer})
	require.Len(t, pairs, 1)
	assert.Equal(t, first.Timestamp, pairs[0].Truth.Timestamp)
}

func TestPairSkipsHexWithoutTimestamp(t *testing.T) {
	v := accuracy.New()

	records := []sigfox.Record{
		{Device: "D1", HexData: knownHex},
		truthRecord("D1", 0, 7.25, 99.9, 1025.9465),
	}

	assert.Empty(t, v.Pair(records))
}

func TestCompareAccurate(t *testing.T) {
	v := accuracy.New()

	res := v.Compare(accuracy.Pair{
		Hex:   hexRecord("D1", 0, knownHex),
		Truth: truthRecord("D1", time.Second, 7.25, 99.9, 1025.95),
	})

	require.Empty(t, res.Error)
	require.NotNil(t, res.Decoded)
	require.NotNil(t, res.Differences)

	assert.InDelta(t, 0, res.Differences.Temperature, 1e-12)
	assert.InDelta(t, 0, res.Differences.Humidity, 1e-12)
	assert.InDelta(t, -0.0035, res.Differences.Pressure, 1e-12)
	assert.True(t, res.IsAccurate)
	assert.Equal(t, "D1", res.Device)
}

func TestCompareToleranceBoundary(t *testing.T) {
	v := accuracy.New()
	hexData := packet.Encode(packet.Reading{Temperature: 7.26, Humidity: 50, Pressure: 1000})

	exact := v.Compare(accuracy.Pair{
		Hex:   hexRecord("D1", 0, hexData),
		Truth: truthRecord("D1", 0, 7.25, 50, 1000),
	})
	require.Empty(t, exact.Error)
	assert.InDelta(t, 0.01, exact.Differences.Temperature, 1e-12)
	assert.True(t, exact.Matches.Temperature)
	assert.True(t, exact.IsAccurate)

	over := v.Compare(accuracy.Pair{
		Hex:   hexRecord("D1", 0, hexData),
		Truth: truthRecord("D1", 0, 7.2499, 50, 1000),
	})
	require.Empty(t, over.Error)
	assert.InDelta(t, 0.0101, over.Differences.Temperature, 1e-12)
	assert.False(t, over.Matches.Temperature)
	assert.True(t, over.Matches.Humidity)
	assert.True(t, over.Matches.Pressure)
	assert.False(t, over.IsAccurate)

	below := v.Compare(accuracy.Pair{
		Hex:   hexRecord("D1", 0, hexData),
		Truth: truthRecord("D1", 0, 7.27, 50, 1000),
	})
	assert.InDelta(t, -0.01, below.Differences.Temperature, 1e-12)
	assert.True(t, below.Matches.Temperature)
}

func TestCompareDecodeFailure(t *testing.T) {
	v := accuracy.New()

	res := v.Compare(accuracy.Pair{
		Hex:   hexRecord("D1", 0, "nothex"),
		Truth: truthRecord("D1", 0, 7.25, 99.9, 1025.9465),
	})

	assert.False(t, res.IsAccurate)
	assert.Contains(t, res.Error, "invalid hex format")
	assert.Nil(t, res.Decoded)
}

func TestCompareInvalidGroundTruth(t *testing.T) {
	v := accuracy.New()

	truth := truthRecord("D1", 0, 7.25, 99.9, 1025.9465)
	truth.Humidity = &sigfox.Number{}

	res := v.Compare(accuracy.Pair{Hex: hexRecord("D1", 0, knownHex), Truth: truth})

	assert.False(t, res.IsAccurate)
	assert.Contains(t, res.Error, "invalid ground truth")
	assert.NotNil(t, res.Decoded)
	assert.Nil(t, res.Actual)
}

func TestSummarize(t *testing.T) {
	v := accuracy.New()

	empty := v.Summarize(nil)
	assert.Equal(t, accuracy.Summary{AccuracyRate: "0.00"}, empty)

	s := v.Summarize([]accuracy.Result{
		{IsAccurate: true},
		{IsAccurate: false},
		{IsAccurate: true},
		{Error: "boom"},
		{IsAccurate: false},
		{IsAccurate: true},
	})
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 3, s.AccurateCount)
	assert.Equal(t, 1, s.DecodeErrors)
	assert.Equal(t, "50.00", s.AccuracyRate)

	third := v.Summarize([]accuracy.Result{{IsAccurate: true}, {}, {}})
	assert.Equal(t, "33.33", third.AccuracyRate)
}

func TestValidate(t *testing.T) {
	v := accuracy.New()

	records := []sigfox.Record{
		hexRecord("D1", 0, knownHex),
		truthRecord("D1", 1500*time.Millisecond, 7.25, 99.9, 1025.95),
		hexRecord("D2", 0, packet.Encode(packet.Reading{Temperature: 20, Humidity: 40, Pressure: 1000})),
		truthRecord("D2", 2*time.Second, 21, 40, 1000),
		hexRecord("D3", 0, knownHex),
	}

	results, summary := v.Validate(records)
	require.Len(t, results, 2)

	assert.True(t, results[0].IsAccurate)
	assert.False(t, results[1].IsAccurate)
	assert.InDelta(t, -1, results[1].Differences.Temperature, 1e-12)
	assert.Equal(t, accuracy.Summary{Total: 2, AccurateCount: 1, AccuracyRate: "50.00"}, summary)
}

package dataset //nolint:testpackage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toBod(t time.Time) int64 {
	return t.Truncate(24 * time.Hour).UnixMilli()
}

func TestPush(t *testing.T) {
	set := newSetOfData()

	for i := range 20 {
		day := i + 1

		morning := time.Date(2024, 5, day, 8, 0, 0, 0, time.UTC)
		set.push(10.5, morning)
		set.push(15.5, morning)

		afternoon := time.Date(2024, 5, day, 14, 0, 0, 0, time.UTC)
		set.push(20.5, afternoon)
		set.push(25.5, afternoon)

		evening := time.Date(2024, 5, day, 2, 0, 0, 0, time.UTC)
		set.push(30.5, evening)
		set.push(35.5, evening)

		buckets := set.data[toBod(morning)]
		require.NotNil(t, buckets)

		assert.InDelta(t, 26.0, buckets.morning.sum, 1e-9)
		assert.Equal(t, 2, buckets.morning.count)
		assert.InDelta(t, 46.0, buckets.afternoon.sum, 1e-9)
		assert.Equal(t, 2, buckets.afternoon.count)
		assert.InDelta(t, 66.0, buckets.evening.sum, 1e-9)
		assert.Equal(t, 2, buckets.evening.count)
	}
}

func TestTimeSeries(t *testing.T) {
	set := newSetOfData()

	expected := timeSeries{}

	for i := range 10 {
		day := i + 1
		bod := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)

		set.push(10.5, bod.Add(7*time.Hour))
		set.push(15.5, bod.Add(11*time.Hour))
		set.push(20.25, bod.Add(13*time.Hour))
		set.push(1013.25, bod.Add(19*time.Hour))
		set.push(1013.5, bod.Add(23*time.Hour))
		set.push(1014, bod.Add(1*time.Hour))

		expected = append(expected,
			[]any{bod.Add(8 * time.Hour).UnixMilli(), 13.0},
			[]any{bod.Add(14 * time.Hour).UnixMilli(), 20.25},
			[]any{bod.Add(20 * time.Hour).UnixMilli(), 1013.58},
		)
	}

	assert.Equal(t, expected, set.timeSeries())
}

func TestRemove(t *testing.T) {
	set := newSetOfData()

	for i := range 1000 {
		timestamp := time.Date(2024, 5, 1+i%20, i%24, 0, 0, 0, time.UTC)
		set.push(float64(i), timestamp)
	}

	assert.Len(t, set.data, 20)
	set.remove(time.Date(2024, 5, 11, 12, 0, 0, 0, time.UTC))
	assert.Len(t, set.data, 10)
}

func TestConcurrent(t *testing.T) {
	set := newSetOfData()

	var wg sync.WaitGroup

	for i := range 1000 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			set.push(float64(i), time.Date(2024, 5, 1, i%24, 0, 0, 0, time.UTC))
		}()

		go func() {
			defer wg.Done()

			_ = set.timeSeries()
		}()
	}

	wg.Wait()

	require.Len(t, set.data, 1)

	buckets := set.data[toBod(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))]
	assert.Equal(t, 1000, buckets.morning.count+buckets.afternoon.count+buckets.evening.count)
}

func BenchmarkTimeSeries(b *testing.B) {
	set := newSetOfData()

	for i := range 20 {
		bod := time.Date(2024, 5, i+1, 0, 0, 0, 0, time.UTC)
		set.push(10.5, bod.Add(8*time.Hour))
		set.push(20.5, bod.Add(14*time.Hour))
		set.push(30.5, bod.Add(20*time.Hour))
	}

	for b.Loop() {
		_ = set.timeSeries()
	}
}

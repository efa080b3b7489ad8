package dataset

import (
	"sort"
	"sync"
	"time"

	"sigfox-decoder/internal/packet"
)

const day = 24 * time.Hour

type bucket struct {
	sum   float64
	count int
}

func (b bucket) mean() float64 {
	return packet.Round(b.sum/float64(b.count), 2)
}

// Readings are averaged per UTC day in three parts: morning [06,12),
// day [12,18) and evening [18,06).
type dailyBuckets struct {
	morning, afternoon, evening bucket
}

type setOfData struct {
	mu   sync.RWMutex
	data map[int64]*dailyBuckets
}

func newSetOfData() *setOfData {
	return &setOfData{
		data: make(map[int64]*dailyBuckets),
	}
}

func (d *setOfData) push(value float64, timestamp time.Time) {
	timestamp = timestamp.UTC()
	bod := timestamp.Truncate(day).UnixMilli()

	d.mu.Lock()
	defer d.mu.Unlock()

	buckets, ok := d.data[bod]
	if !ok {
		buckets = &dailyBuckets{}
		d.data[bod] = buckets
	}

	var b *bucket

	switch hour := timestamp.Hour(); {
	case hour >= 6 && hour < 12:
		b = &buckets.morning
	case hour >= 12 && hour < 18:
		b = &buckets.afternoon
	default:
		b = &buckets.evening
	}

	b.sum += value
	b.count++
}

// remove drops every day that starts before the given time.
func (d *setOfData) remove(before time.Time) {
	limit := before.UTC().Truncate(day).UnixMilli()

	d.mu.Lock()
	defer d.mu.Unlock()

	for bod := range d.data {
		if bod < limit {
			delete(d.data, bod)
		}
	}
}

// [[1324508400000, 34.5], [1324594800000, 54.25], ...].
type timeSeries [][]any

func (d *setOfData) timeSeries() timeSeries {
	d.mu.RLock()
	defer d.mu.RUnlock()

	days := make([]int64, 0, len(d.data))
	for bod := range d.data {
		days = append(days, bod)
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	series := timeSeries{}

	for _, bod := range days {
		start := time.UnixMilli(bod)
		buckets := d.data[bod]

		for _, part := range []struct {
			offset time.Duration
			b      bucket
		}{
			{8 * time.Hour, buckets.morning},
			{14 * time.Hour, buckets.afternoon},
			{20 * time.Hour, buckets.evening},
		} {
			if part.b.count == 0 {
				continue
			}

			series = append(series, []any{start.Add(part.offset).UnixMilli(), part.b.mean()})
		}
	}

	return series
}

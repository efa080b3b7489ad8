package dataset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sigfox-decoder/internal/packet"
)

type eventEmitter interface {
	Subscribe() chan packet.Packet
	Unsubscribe(ch chan packet.Packet)
}

// Stats keeps daily averages of every reading published by the emitter
// and the most recent packet.
type Stats struct {
	temperature *setOfData
	humidity    *setOfData
	pressure    *setOfData

	mu      sync.RWMutex
	current packet.Packet
	total   int
}

type Series struct {
	Temperature timeSeries `json:"temperature"`
	Humidity    timeSeries `json:"humidity"`
	Pressure    timeSeries `json:"pressure"`
}

type EventResponse struct {
	Current *packet.Packet `json:"current"`
	Total   int            `json:"total"`
	Chart   *Series        `json:"chart"`
}

func NewStats() *Stats {
	return &Stats{
		temperature: newSetOfData(),
		humidity:    newSetOfData(),
		pressure:    newSetOfData(),
	}
}

func (s *Stats) Push(p packet.Packet) {
	s.temperature.push(p.Temperature, p.Timestamp)
	s.humidity.push(p.Humidity, p.Timestamp)
	s.pressure.push(p.Pressure, p.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Timestamp.After(s.current.Timestamp) || s.total == 0 {
		s.current = p
	}

	s.total++
}

func (s *Stats) Subscribe(ctx context.Context, emitter eventEmitter) error {
	ch := emitter.Subscribe()
	defer emitter.Unsubscribe(ch)

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return nil
			}

			s.Push(data)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Stats) Series() *Series {
	return &Series{
		Temperature: s.temperature.timeSeries(),
		Humidity:    s.humidity.timeSeries(),
		Pressure:    s.pressure.timeSeries(),
	}
}

// Clear drops data older than retention on every tick of interval.
func (s *Stats) Clear(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			slog.DebugContext(ctx, "running scheduled task clear")
			s.removeBefore(now.Add(-retention))
		}
	}
}

func (s *Stats) removeBefore(t time.Time) {
	s.temperature.remove(t)
	s.humidity.remove(t)
	s.pressure.remove(t)
}

// Current returns the newest packet seen, or nil before the first one.
func (s *Stats) Current() *packet.Packet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.total == 0 {
		return nil
	}

	current := s.current

	return &current
}

func (s *Stats) EventResponse() *EventResponse {
	s.mu.RLock()
	total := s.total
	s.mu.RUnlock()

	return &EventResponse{
		Current: s.Current(),
		Total:   total,
		Chart:   s.Series(),
	}
}

package packet

import "sync"

const subscriberBuffer = 16

// EventEmitter fans decoded packets out to subscribers. Slow subscribers
// lose packets instead of blocking the producer.
type EventEmitter struct {
	subscribers map[chan Packet]struct{}
	mu          sync.Mutex
	dropped     uint64
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		subscribers: make(map[chan Packet]struct{}),
	}
}

func (e *EventEmitter) Subscribe() chan Packet {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Packet, subscriberBuffer)

	if e.subscribers == nil {
		close(ch)

		return ch
	}

	e.subscribers[ch] = struct{}{}

	return ch
}

func (e *EventEmitter) Unsubscribe(ch chan Packet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscribers[ch]; !ok {
		return
	}

	delete(e.subscribers, ch)
	close(ch)
}

// Emit returns the number of subscribers the packet was delivered to.
func (e *EventEmitter) Emit(data Packet) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	delivered := 0

	for ch := range e.subscribers {
		select {
		case ch <- data:
			delivered++
		default:
			e.dropped++
		}
	}

	return delivered
}

func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subscribers {
		close(ch)
	}

	e.subscribers = nil
}

func (e *EventEmitter) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.subscribers)
}

func (e *EventEmitter) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.dropped
}

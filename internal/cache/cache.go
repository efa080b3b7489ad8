package cache

import (
	"sync"
	"time"
)

// TTL holds a single value for a fixed time window.
type TTL[T any] struct {
	mu       sync.Mutex
	value    T
	storedAt time.Time
	set      bool
	ttl      time.Duration
	now      func() time.Time
}

func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the value and true while it is younger than the TTL.
func (c *TTL[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T

	if !c.set || c.ttl <= 0 || c.now().Sub(c.storedAt) >= c.ttl {
		return zero, false
	}

	return c.value, true
}

func (c *TTL[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.storedAt = c.now()
	c.set = true
}

// Age is the time since the last Set.
func (c *TTL[T]) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set {
		return 0
	}

	return c.now().Sub(c.storedAt)
}

func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T

	c.value = zero
	c.set = false
}

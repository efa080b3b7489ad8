package cache //nolint:testpackage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func TestTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}

	c := NewTTL[[]int](30 * time.Second)
	c.now = clock.now

	_, ok := c.Get()
	require.False(t, ok)

	c.Set([]int{1, 2})

	clock.t = clock.t.Add(29 * time.Second)
	v, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, v)
	assert.Equal(t, 29*time.Second, c.Age())

	clock.t = clock.t.Add(time.Second)
	_, ok = c.Get()
	assert.False(t, ok)

	c.Set([]int{3})
	c.Invalidate()
	_, ok = c.Get()
	assert.False(t, ok)
	assert.Zero(t, c.Age())
}

func TestTTLDisabled(t *testing.T) {
	c := NewTTL[string](0)
	c.Set("x")

	_, ok := c.Get()
	assert.False(t, ok)
}

func TestTTLConcurrent(t *testing.T) {
	c := NewTTL[int](time.Minute)

	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			c.Set(i)
		}()

		go func() {
			defer wg.Done()

			_, _ = c.Get()
		}()
	}

	wg.Wait()

	_, ok := c.Get()
	assert.True(t, ok)
}

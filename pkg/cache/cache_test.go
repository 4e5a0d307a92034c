package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_GetSet(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Stop()

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("selector", "dkim1", time.Minute)
	v, found := c.Get("selector")
	require.True(t, found)
	assert.Equal(t, "dkim1", v)
}

func TestInMemoryCache_Expiration(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Stop()

	c.Set("short", "value", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, found := c.Get("short")
	assert.False(t, found)
}

func TestInMemoryCache_GetOrSet(t *testing.T) {
	t.Run("computes on miss, serves from cache after", func(t *testing.T) {
		c := NewInMemoryCache(time.Minute)
		defer c.Stop()

		calls := 0
		compute := func() (interface{}, error) {
			calls++
			return "computed", nil
		}

		v, err := c.GetOrSet("key", time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, "computed", v)

		v, err = c.GetOrSet("key", time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, "computed", v)
		assert.Equal(t, 1, calls)
	})

	t.Run("propagates compute error without caching", func(t *testing.T) {
		c := NewInMemoryCache(time.Minute)
		defer c.Stop()

		_, err := c.GetOrSet("key", time.Minute, func() (interface{}, error) {
			return nil, errors.New("lookup failed")
		})
		require.Error(t, err)
		assert.Equal(t, 0, c.Size())
	})
}

func TestInMemoryCache_Delete(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Stop()

	c.Set("key", "value", time.Minute)
	c.Delete("key")

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestInMemoryCache_Cleanup(t *testing.T) {
	c := NewInMemoryCache(20 * time.Millisecond)
	defer c.Stop()

	c.Set("a", 1, 5*time.Millisecond)
	c.Set("b", 2, time.Minute)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, c.Size())
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("shared", j, time.Minute)
				c.Get("shared")
			}
		}()
	}
	wg.Wait()

	_, found := c.Get("shared")
	assert.True(t, found)
}

func TestInMemoryCache_StopIsIdempotent(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	c.Stop()
	c.Stop()
}

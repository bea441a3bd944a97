package commandqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_GetSet(t *testing.T) {
	cache := newDedupCache(context.Background(), time.Minute)
	defer cache.Stop()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("req-1", taskResult{value: "cached"})
	result, ok := cache.Get("req-1")
	assert.True(t, ok)
	assert.Equal(t, "cached", result.value)
	assert.Equal(t, 1, cache.Size())
}

func TestDedupCache_Expiry(t *testing.T) {
	cache := newDedupCache(context.Background(), 20*time.Millisecond)
	defer cache.Stop()

	cache.Set("req-1", taskResult{value: "cached"})
	time.Sleep(50 * time.Millisecond)

	_, ok := cache.Get("req-1")
	assert.False(t, ok, "expired entries are not served")
}

func TestDedupCache_Clear(t *testing.T) {
	cache := newDedupCache(context.Background(), time.Minute)
	defer cache.Stop()

	cache.Set("req-1", taskResult{})
	cache.Set("req-2", taskResult{})
	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestDedupCache_Shutdown(t *testing.T) {
	cache := newDedupCache(context.Background(), 50*time.Millisecond)
	cache.Stop()

	select {
	case <-cache.ctx.Done():
		// ok
	case <-time.After(1 * time.Second):
		t.Fatalf("dedup cache cleanup did not stop within timeout")
	}
}

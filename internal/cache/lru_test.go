package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotwise/landmatch/internal/model"
)

func TestMemoryTierEvictsLeastRecentlyUsed(t *testing.T) {
	m := newMemoryTier(DefaultCapacity)

	for i := 0; i < DefaultCapacity; i++ {
		m.put(fmt.Sprintf("plot-%d", i), model.CacheEntry{})
	}
	require.Equal(t, DefaultCapacity, m.len())

	// Touch the oldest key so plot-1 becomes the eviction candidate.
	_, ok := m.get("plot-0")
	require.True(t, ok)

	m.put("plot-overflow", model.CacheEntry{})

	assert.Equal(t, DefaultCapacity, m.len())
	_, ok = m.get("plot-1")
	assert.False(t, ok, "least-recently-used key is evicted on overflow")
	_, ok = m.get("plot-0")
	assert.True(t, ok, "a read promotes the entry out of eviction order")
	_, ok = m.get("plot-overflow")
	assert.True(t, ok)
}

func TestMemoryTierUpdateDoesNotGrow(t *testing.T) {
	m := newMemoryTier(2)

	m.put("a", model.CacheEntry{CacheVersion: 1})
	m.put("b", model.CacheEntry{CacheVersion: 1})
	m.put("a", model.CacheEntry{CacheVersion: 2})

	assert.Equal(t, 2, m.len())
	got, ok := m.get("a")
	require.True(t, ok)
	assert.Equal(t, 2, got.CacheVersion)
	_, ok = m.get("b")
	assert.True(t, ok, "re-putting an existing key must not evict")
}

func TestMemoryTierRemove(t *testing.T) {
	m := newMemoryTier(2)

	m.put("a", model.CacheEntry{})
	m.remove("a")
	m.remove("a") // idempotent

	assert.Equal(t, 0, m.len())
	_, ok := m.get("a")
	assert.False(t, ok)
}

func TestMemoryTierConcurrentAccess(t *testing.T) {
	m := newMemoryTier(16)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("plot-%d", (n+j)%32)
				m.put(key, model.CacheEntry{CacheVersion: j})
				m.get(key)
				if j%10 == 0 {
					m.remove(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.len(), 16)
}

package cache

import (
	"sync"

	"github.com/plotwise/landmatch/internal/model"
)

// memoryTier is a thread-safe bounded LRU over cache entries, keyed by
// normalized land number. On overflow the least-recently-used entry is
// evicted before the new one is inserted; reads promote an entry to
// most-recently-used.
type memoryTier struct {
	capacity int

	mu    sync.Mutex
	index map[string]*node
	front *node // most recently used
	back  *node // least recently used
}

type node struct {
	key   string
	entry model.CacheEntry
	prev  *node
	next  *node
}

func newMemoryTier(capacity int) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		index:    make(map[string]*node),
	}
}

func (m *memoryTier) get(key string) (model.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.index[key]
	if !ok {
		return model.CacheEntry{}, false
	}
	m.promote(n)
	return n.entry, true
}

func (m *memoryTier) put(key string, entry model.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.index[key]; ok {
		n.entry = entry
		m.promote(n)
		return
	}

	n := &node{key: key, entry: entry}
	m.index[key] = n
	m.pushFront(n)

	if len(m.index) > m.capacity {
		m.evict()
	}
}

// remove drops an entry without touching the durable tier. Used by
// operator-driven invalidation.
func (m *memoryTier) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.index[key]
	if !ok {
		return
	}
	delete(m.index, key)
	m.unlink(n)
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

func (m *memoryTier) promote(n *node) {
	if n == m.front {
		return
	}
	m.unlink(n)
	m.pushFront(n)
}

func (m *memoryTier) pushFront(n *node) {
	n.next = m.front
	n.prev = nil
	if m.front != nil {
		m.front.prev = n
	}
	m.front = n
	if m.back == nil {
		m.back = n
	}
}

func (m *memoryTier) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		m.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		m.back = n.prev
	}
}

func (m *memoryTier) evict() {
	if m.back == nil {
		return
	}
	delete(m.index, m.back.key)
	m.unlink(m.back)
}

// Package cache provides a small fixed-capacity LRU used to memoize
// domain name lookups.
package cache

import (
	"sync"
	"time"
)

// LRU is a fixed-capacity cache with one TTL shared by every entry.
// Expired entries are dropped lazily on lookup; when the cache is full
// the least recently used entry is evicted to make room.
type LRU[K comparable, V any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	now   func() time.Time
	index map[K]*node[K, V]
	head  *node[K, V] // most recently used
	tail  *node[K, V] // next eviction candidate
}

type node[K comparable, V any] struct {
	key        K
	val        V
	staleAfter time.Time
	prev, next *node[K, V]
}

func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU[K, V]{
		cap:   capacity,
		ttl:   ttl,
		now:   time.Now,
		index: make(map[K]*node[K, V], capacity),
	}
}

// Get returns the cached value for key. An entry past its TTL is removed
// and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(n.staleAfter) {
		c.unlink(n)
		delete(c.index, key)
		var zero V
		return zero, false
	}
	c.touch(n)
	return n.val, true
}

// Put stores value under key, refreshing its TTL and recency.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.index[key]; ok {
		n.val = value
		n.staleAfter = c.now().Add(c.ttl)
		c.touch(n)
		return
	}
	if len(c.index) >= c.cap && c.tail != nil {
		oldest := c.tail
		c.unlink(oldest)
		delete(c.index, oldest.key)
	}
	n := &node[K, V]{key: key, val: value, staleAfter: c.now().Add(c.ttl)}
	c.index[key] = n
	c.pushFront(n)
}

func (c *LRU[K, V]) touch(n *node[K, V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *LRU[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRU[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

package publish

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// LRU is a typed, bounded least-recently-used map safe for concurrent use.
type LRU[K comparable, V any] struct {
	cache     *lru.Cache
	evictions atomic.Int64
}

func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New(capacity)
	return &LRU[K, V]{cache: cache}
}

// Get returns the value for key and promotes it.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	if v, ok := l.cache.Get(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// Add inserts or updates key, evicting the oldest entry when over capacity.
func (l *LRU[K, V]) Add(key K, value V) {
	if l.cache.Add(key, value) {
		l.evictions.Add(1)
	}
}

// Remove deletes key if present.
func (l *LRU[K, V]) Remove(key K) {
	l.cache.Remove(key)
}

func (l *LRU[K, V]) Len() int {
	return l.cache.Len()
}

func (l *LRU[K, V]) Evictions() int64 {
	return l.evictions.Load()
}

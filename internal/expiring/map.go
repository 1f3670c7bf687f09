// Package expiring provides concurrency-safe maps whose entries disappear a fixed
// time after they were stored.
package expiring

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Map[K comparable, V any] struct {
	mu  sync.Mutex
	lru *expirable.LRU[K, V]
	ttl time.Duration
}

// New returns an unbounded map with the given entry TTL.
func New[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return NewBounded[K, V](0, ttl)
}

// NewBounded returns a map holding at most size entries, evicting the least recently used.
// A size of zero means unbounded.
func NewBounded[K comparable, V any](size int, ttl time.Duration) *Map[K, V] {
	return &Map[K, V]{
		lru: expirable.NewLRU[K, V](size, nil, ttl),
		ttl: ttl,
	}
}

func (m *Map[K, V]) TTL() time.Duration {
	return m.ttl
}

// Put stores v under k, restarting its TTL.
func (m *Map[K, V]) Put(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(k, v)
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Get(k)
}

func (m *Map[K, V]) Has(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lru.Get(k)
	return ok
}

// PutIfAbsent stores v only when k holds no live entry and reports whether it did.
func (m *Map[K, V]) PutIfAbsent(k K, v V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lru.Get(k); ok {
		return false
	}
	m.lru.Add(k, v)
	return true
}

// Update replaces the value under k with fn(current, found) atomically.
func (m *Map[K, V]) Update(k K, fn func(current V, found bool) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.lru.Get(k)
	next := fn(current, ok)
	m.lru.Add(k, next)
	return next
}

func (m *Map[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(k)
}

// Len counts entries not yet swept; expired entries may still be included.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

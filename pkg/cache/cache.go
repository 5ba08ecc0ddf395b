/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache provides a named LRU cache that counts its hits and misses.
package cache

import (
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrInvalidMaxSize is returned when the given max size is not positive.
	ErrInvalidMaxSize = errors.New("max size must be > 0")
)

// Stats holds the hit and miss counters of a cache.
type Stats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// Hits returns the number of cache hits.
func (s *Stats) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the number of cache misses.
func (s *Stats) Misses() int64 {
	return s.misses.Load()
}

// HitRate returns the ratio of hits to lookups, between 0 and 1.
func (s *Stats) HitRate() float64 {
	total := s.Hits() + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(s.Hits()) / float64(total)
}

// LRU is a fixed-size LRU cache with statistics. It is safe for concurrent
// use.
type LRU[K comparable, V any] struct {
	name  string
	cache *lru.Cache[K, V]
	stats Stats
}

// NewLRU creates an LRU cache holding at most size entries.
func NewLRU[K comparable, V any](name string, size int) (*LRU[K, V], error) {
	if size <= 0 {
		return nil, ErrInvalidMaxSize
	}

	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}

	return &LRU[K, V]{name: name, cache: c}, nil
}

// Name returns the name of the cache.
func (c *LRU[K, V]) Name() string {
	return c.name
}

// Get returns the value of key and counts a hit or a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	value, ok := c.cache.Get(key)
	if ok {
		c.stats.hits.Add(1)
	} else {
		c.stats.misses.Add(1)
	}
	return value, ok
}

// GetOrAdd returns the cached value of key, or adds value and returns it.
// The boolean reports whether the value was already cached. It does not
// count toward the statistics.
func (c *LRU[K, V]) GetOrAdd(key K, value V) (V, bool) {
	prev, ok, _ := c.cache.PeekOrAdd(key, value)
	if ok {
		return prev, true
	}
	return value, false
}

// Add adds value under key and reports whether an entry was evicted.
func (c *LRU[K, V]) Add(key K, value V) bool {
	return c.cache.Add(key, value)
}

// Remove removes key from the cache.
func (c *LRU[K, V]) Remove(key K) bool {
	return c.cache.Remove(key)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.cache.Len()
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	c.cache.Purge()
}

// Stats returns the statistics of the cache.
func (c *LRU[K, V]) Stats() *Stats {
	return &c.stats
}

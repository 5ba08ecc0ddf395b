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

// Package cmap provides a concurrent map sharded by the hash of string keys.
package cmap

import (
	"hash/fnv"
	"sync"
)

// numShards is the number of shards.
const numShards = 16

type shard[K ~string, V any] struct {
	sync.RWMutex
	items map[K]V
}

// Map is a concurrent map that is safe for multiple routines. Keys are
// spread over shards so lookups of different keys rarely contend.
type Map[K ~string, V any] struct {
	shards [numShards]shard[K, V]
}

// New creates a new Map.
func New[K ~string, V any]() *Map[K, V] {
	m := &Map[K, V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	return &m.shards[hash.Sum32()%numShards]
}

// Get retrieves a value from the map.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)

	s.RLock()
	defer s.RUnlock()

	value, exists := s.items[key]
	return value, exists
}

// Set stores value under key.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)

	s.Lock()
	defer s.Unlock()

	s.items[key] = value
}

// GetOrInsert returns the value of key, or stores and returns the value
// made by newFunc. newFunc runs under the lock of the shard, at most once
// per missing key. The boolean reports whether the value already existed.
func (m *Map[K, V]) GetOrInsert(key K, newFunc func() V) (V, bool) {
	s := m.shardFor(key)

	s.Lock()
	defer s.Unlock()

	if value, exists := s.items[key]; exists {
		return value, true
	}
	value := newFunc()
	s.items[key] = value
	return value, false
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.shardFor(key)

	s.Lock()
	defer s.Unlock()

	_, exists := s.items[key]
	delete(s.items, key)
	return exists
}

// Len returns the number of items in the map.
func (m *Map[K, V]) Len() int {
	count := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}
	return count
}

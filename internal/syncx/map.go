// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncx provides generic concurrency-safe collection wrappers used
// by the orchestrator's per-name memoization table.
package syncx

import "sync"

// Map is a type-safe wrapper around sync.Map.
type Map[K comparable, V any] struct {
	m sync.Map
}

// Load returns the value stored for key, or the zero value if absent.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Store sets the value for key.
func (m *Map[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

// LoadOrStore returns the existing value for key if present, otherwise
// stores and returns value. loaded is true iff an existing value was
// returned.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	a, loaded := m.m.LoadOrStore(key, value)
	return a.(V), loaded
}

// Delete removes key from the map.
func (m *Map[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Range calls f for every entry until f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Len counts the entries currently stored. O(n); intended for diagnostics.
func (m *Map[K, V]) Len() int {
	n := 0
	m.Range(func(K, V) bool { n++; return true })
	return n
}

// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a coalescing in-memory cache. No package in this
// repository imports it: the Bootstrap Orchestrator's per-canonical-name
// memoization (spec.md §5) is built on internal/syncx instead.
package cache

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNotExist is returned when a key has never been populated.
var ErrNotExist = errors.New("does not exist")

// Cache is a simple keyed cache of lazily-computed values.
type Cache interface {
	Get(key any) (any, error)
	GetOrSet(key any, fetch func() (any, error)) (any, error)
	Del(key any)
}

// fn wraps a fetch function in a sync.OnceValues so concurrent callers for
// the same key coalesce onto a single execution.
type fn struct {
	Func func() (any, error)
}

// CoalescingMemoryCache is a Cache that runs each key's fetch function at
// most once concurrently, sharing the in-flight result (and error) among
// all callers that request the same key before it completes. A failed
// fetch is evicted so a later call can retry.
type CoalescingMemoryCache struct {
	data sync.Map // key -> *fn
}

func (c *CoalescingMemoryCache) valueOrClear(key, once any) (any, error) {
	val, err := once.(*fn).Func()
	if err != nil {
		c.data.CompareAndDelete(key, once)
	}
	return val, err
}

// Get returns the cached value for key, or ErrNotExist if never set.
func (c *CoalescingMemoryCache) Get(key any) (any, error) {
	once, ok := c.data.Load(key)
	if !ok {
		return nil, ErrNotExist
	}
	return c.valueOrClear(key, once)
}

// GetOrSet returns the cached value for key, computing and storing it via
// fetch if absent. Concurrent calls for the same key before fetch
// completes share its single execution.
func (c *CoalescingMemoryCache) GetOrSet(key any, fetch func() (any, error)) (any, error) {
	once, _ := c.data.LoadOrStore(key, &fn{sync.OnceValues(fetch)})
	return c.valueOrClear(key, once)
}

// Del removes key from the cache.
func (c *CoalescingMemoryCache) Del(key any) {
	c.data.Delete(key)
}

var _ Cache = &CoalescingMemoryCache{}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache provides read-through caches for ledger lookups
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for key on a cache miss
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type ttlItem[V any] struct {
	value   V
	fetched time.Time
}

// TTLCache keeps values for a fixed duration. Concurrent misses on the same
// key share a single fetch.
type TTLCache[K comparable, V any] struct {
	ttl   time.Duration
	fetch FetchFunc[K, V]
	now   func() time.Time

	lock  sync.RWMutex
	items map[K]ttlItem[V]
	group singleflight.Group
}

func NewTTLCache[K comparable, V any](ttl time.Duration, fetch FetchFunc[K, V]) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl:   ttl,
		fetch: fetch,
		now:   time.Now,
		items: make(map[K]ttlItem[V]),
	}
}

// Get returns the cached value for key if it is younger than the TTL and
// fetches it otherwise. Failed fetches are not cached.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.lock.RLock()
	item, ok := c.items[key]
	c.lock.RUnlock()
	if ok && c.now().Sub(item.fetched) < c.ttl {
		return item.value, nil
	}

	v, err, _ := c.group.Do(keyToString(key), func() (any, error) {
		value, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}

		c.lock.Lock()
		c.items[key] = ttlItem[V]{value: value, fetched: c.now()}
		c.lock.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops key so the next Get fetches it
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.items, key)
}

// keyToString supports both fmt.Stringer and primitive keys
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRUCache holds a bounded number of immutable values, such as receipts of
// mined transactions. Only values accepted by keep are stored, so a lookup
// that found nothing yet is repeated on the next Get.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	fetch FetchFunc[K, V]
	keep  func(V) bool
	group singleflight.Group
}

// NewLRUCache returns a cache of at most size entries. A nil keep stores
// every fetched value.
func NewLRUCache[K comparable, V any](size int, fetch FetchFunc[K, V], keep func(V) bool) (*LRUCache[K, V], error) {
	cache, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	if keep == nil {
		keep = func(V) bool { return true }
	}
	return &LRUCache[K, V]{
		cache: cache,
		fetch: fetch,
		keep:  keep,
	}, nil
}

func (c *LRUCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := c.cache.Get(key); ok {
		return value, nil
	}

	v, err, _ := c.group.Do(keyToString(key), func() (any, error) {
		value, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if c.keep(value) {
			c.cache.Add(key, value)
		}
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *LRUCache[K, V]) Len() int {
	return c.cache.Len()
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fetchCount := 0
	c := NewTTLCache[string, int](time.Second, func(_ context.Context, key string) (int, error) {
		fetchCount++
		return len(key) * 10, nil
	})
	c.now = func() time.Time { return now }

	tests := []struct {
		name          string
		advance       time.Duration
		invalidate    bool
		expectedCount int
	}{
		{
			name:          "fresh cache, fetch",
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			advance:       500 * time.Millisecond,
			expectedCount: 1,
		},
		{
			name:          "invalidated, fetch",
			invalidate:    true,
			expectedCount: 2,
		},
		{
			name:          "ttl expired, fetch",
			advance:       time.Second,
			expectedCount: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			now = now.Add(tt.advance)
			if tt.invalidate {
				c.Invalidate("test")
			}
			v, err := c.Get(context.Background(), "test")
			require.NoError(err)
			require.Equal(40, v)
			require.Equal(tt.expectedCount, fetchCount)
		})
	}
}

func TestTTLCacheErrorNotCached(t *testing.T) {
	require := require.New(t)

	errFetch := errors.New("fetch failed")
	fail := true
	c := NewTTLCache[int, string](time.Minute, func(context.Context, int) (string, error) {
		if fail {
			return "", errFetch
		}
		return "ok", nil
	})

	_, err := c.Get(context.Background(), 1)
	require.ErrorIs(err, errFetch)

	fail = false
	v, err := c.Get(context.Background(), 1)
	require.NoError(err)
	require.Equal("ok", v)
}

func TestTTLCacheSingleFlight(t *testing.T) {
	var (
		fetchCount atomic.Int32
		release    = make(chan struct{})
	)
	c := NewTTLCache[string, int](time.Minute, func(context.Context, string) (int, error) {
		fetchCount.Add(1)
		<-release
		return 7, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "gas")
			require.NoError(t, err)
			require.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), fetchCount.Load())
}

func TestLRUCache(t *testing.T) {
	require := require.New(t)

	fetchCount := map[string]int{}
	values := map[string]*int{}
	c, err := NewLRUCache[string, *int](2, func(_ context.Context, key string) (*int, error) {
		fetchCount[key]++
		return values[key], nil
	}, func(v *int) bool { return v != nil })
	require.NoError(err)

	ctx := context.Background()

	// Missing values are fetched again
	v, err := c.Get(ctx, "a")
	require.NoError(err)
	require.Nil(v)
	_, err = c.Get(ctx, "a")
	require.NoError(err)
	require.Equal(2, fetchCount["a"])
	require.Zero(c.Len())

	one, two, three := 1, 2, 3
	values["a"], values["b"], values["c"] = &one, &two, &three

	v, err = c.Get(ctx, "a")
	require.NoError(err)
	require.Equal(1, *v)
	_, err = c.Get(ctx, "a")
	require.NoError(err)
	require.Equal(3, fetchCount["a"])

	// Exceeding the size evicts the least recently used entry
	_, err = c.Get(ctx, "b")
	require.NoError(err)
	_, err = c.Get(ctx, "c")
	require.NoError(err)
	require.Equal(2, c.Len())

	_, err = c.Get(ctx, "a")
	require.NoError(err)
	require.Equal(4, fetchCount["a"])
	_, err = c.Get(ctx, "c")
	require.NoError(err)
	require.Equal(1, fetchCount["c"])
}

func TestLRUCacheInvalidSize(t *testing.T) {
	_, err := NewLRUCache[string, int](0, nil, nil)
	require.Error(t, err)
}

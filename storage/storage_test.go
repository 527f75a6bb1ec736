// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T, s Storage) {
	require := require.New(t)
	ctx := context.Background()

	_, ok, err := s.GetItem(ctx, "missing")
	require.NoError(err)
	require.False(ok)

	require.NoError(s.SetItem(ctx, "key", `{"a":1}`))
	v, ok, err := s.GetItem(ctx, "key")
	require.NoError(err)
	require.True(ok)
	require.Equal(`{"a":1}`, v)

	require.NoError(s.SetItem(ctx, "key", ""))
	v, ok, err = s.GetItem(ctx, "key")
	require.NoError(err)
	require.True(ok)
	require.Empty(v)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(s.SetItem(cancelled, "key", "x"), context.Canceled)
	_, _, err = s.GetItem(cancelled, "key")
	require.ErrorIs(err, context.Canceled)
}

func TestMemory(t *testing.T) {
	testStorage(t, NewMemory())
}

func TestBadgerInMemory(t *testing.T) {
	b, err := NewBadger("")
	require.NoError(t, err)
	testStorage(t, b)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err = b.SetItem(context.Background(), "key", "x")
	require.ErrorIs(t, err, ErrClosed)
}

func TestBadgerReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBadger(dir)
	require.NoError(err)
	require.NoError(b.SetItem(ctx, "cursor", "150"))
	require.NoError(b.Close())

	b, err = NewBadger(dir)
	require.NoError(err)
	defer b.Close()

	v, ok, err := b.GetItem(ctx, "cursor")
	require.NoError(err)
	require.True(ok)
	require.Equal("150", v)
}

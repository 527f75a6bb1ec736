// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage provides the string key-value capability used to persist
// monitor state.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage closed")

// Storage is an asynchronous string key-value store. A value written with
// SetItem must be returned unchanged by a later GetItem of the same key.
type Storage interface {
	// GetItem returns the value stored under key. ok is false when the key
	// is absent.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)

	// SetItem stores value under key, replacing any previous value
	SetItem(ctx context.Context, key, value string) error
}

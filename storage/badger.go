// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v2"
)

var _ Storage = (*Badger)(nil)

// Badger is a Storage persisted in a badger database
type Badger struct {
	db *badger.DB

	closeLk sync.RWMutex
	closed  bool
}

// NewBadger opens (or creates) a badger database in dir. An empty dir keeps
// the database in memory.
func NewBadger(dir string) (*Badger, error) {
	opt := badger.DefaultOptions(dir).
		WithLogger(nil)
	if dir == "" {
		opt = opt.WithInMemory(true)
	}
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b.closeLk.RLock()
	defer b.closeLk.RUnlock()
	if b.closed {
		return "", false, ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get %s fail: %w", key, err)
	}
	return string(value), true, nil
}

func (b *Badger) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.closeLk.RLock()
	defer b.closeLk.RUnlock()
	if b.closed {
		return ErrClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %s fail: %w", key, err)
	}
	return nil
}

// Close flushes and closes the database. It is safe to call more than once.
func (b *Badger) Close() error {
	b.closeLk.Lock()
	defer b.closeLk.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestWithRetriesTimeout(t *testing.T) {
	t.Run("NotEnoughTime", func(t *testing.T) {
		retryable := newMockRetryableFn(100)
		err := WithRetriesTimeout(
			log.NewNoOpLogger(),
			func() (err error) {
				_, err = retryable.Run()
				return err
			},
			200*time.Millisecond,
			"test",
		)
		require.Error(t, err)
	})
	t.Run("EnoughTime", func(t *testing.T) {
		retryable := newMockRetryableFn(2)
		var res bool
		err := WithRetriesTimeout(
			log.NewNoOpLogger(),
			func() (err error) {
				res, err = retryable.Run()
				return err
			},
			10*time.Second,
			"test",
		)
		require.NoError(t, err)
		require.True(t, res)
	})
}

func TestWithConstantRetries(t *testing.T) {
	t.Run("EventuallySucceeds", func(t *testing.T) {
		retryable := newMockRetryableFn(3)
		start := time.Now()
		err := WithConstantRetries(
			context.Background(),
			log.NewNoOpLogger(),
			func() error {
				_, err := retryable.Run()
				return err
			},
			10*time.Millisecond,
			"test",
		)
		require.NoError(t, err)
		require.Equal(t, uint64(3), retryable.counter)
		require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})
	t.Run("ContextCancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		retryable := newMockRetryableFn(1 << 20)
		err := WithConstantRetries(
			ctx,
			log.NewNoOpLogger(),
			func() error {
				_, err := retryable.Run()
				return err
			},
			5*time.Millisecond,
			"test",
		)
		require.Error(t, err)
		require.Greater(t, retryable.counter, uint64(1))
	})
	t.Run("Permanent", func(t *testing.T) {
		errFatal := errors.New("fatal")
		calls := 0
		err := WithConstantRetries(
			context.Background(),
			log.NewNoOpLogger(),
			func() error {
				calls++
				return backoff.Permanent(errFatal)
			},
			time.Millisecond,
			"test",
		)
		require.ErrorIs(t, err, errFatal)
		require.Equal(t, 1, calls)
	})
}

type mockRetryableFn struct {
	counter uint64
	trigger uint64
}

func newMockRetryableFn(trigger uint64) *mockRetryableFn {
	return &mockRetryableFn{
		counter: 0,
		trigger: trigger,
	}
}

func (m *mockRetryableFn) Run() (bool, error) {
	if m.counter >= m.trigger {
		return true, nil
	}
	m.counter++
	return false, errors.New("error")
}

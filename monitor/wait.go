// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
)

const (
	DefaultWaitInterval = 5 * time.Second
	DefaultWaitTimeout  = 120 * time.Second
)

var ErrTimeout = errors.New("timed out waiting for condition")

// WaitConfig controls WaitFor. Zero Interval and Timeout take their defaults.
// With a zero RetryDelay the first action error is returned, otherwise the
// action is retried after RetryDelay.
type WaitConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	RetryDelay time.Duration
}

func (c WaitConfig) withDefaults() WaitConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultWaitInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultWaitTimeout
	}
	return c
}

// WaitFor runs action immediately and then every Interval until it reports
// done. It returns ErrTimeout once Timeout elapsed, or ctx's error if ctx
// ends first.
func WaitFor[T any](
	ctx context.Context,
	action func(context.Context) (T, bool, error),
	cfg WaitConfig,
) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	expired := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTimeout
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		v, done, err := action(waitCtx)
		switch {
		case err == nil && done:
			return v, nil
		case waitCtx.Err() != nil:
			return zero, expired()
		case err != nil && cfg.RetryDelay <= 0:
			return zero, err
		case err != nil:
			retry := time.NewTimer(cfg.RetryDelay)
			select {
			case <-waitCtx.Done():
				retry.Stop()
				return zero, expired()
			case <-retry.C:
			}
			continue
		}

		select {
		case <-waitCtx.Done():
			return zero, expired()
		case <-ticker.C:
		}
	}
}

// WaitForTransaction polls until the receipt of txHash is available. Receipt
// lookups that fail are retried after the configured receipt retry delay
// unless cfg sets its own RetryDelay.
func (m *Monitor) WaitForTransaction(ctx context.Context, txHash common.Hash, cfg WaitConfig) (*types.Receipt, error) {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = m.cfg.ReceiptRetryDelay
	}
	receipt, err := WaitFor(ctx, func(ctx context.Context) (*types.Receipt, bool, error) {
		r, err := m.client.TransactionReceipt(ctx, txHash)
		if err != nil {
			m.metrics.failureCount.WithLabelValues(opReceipt).Inc()
			m.logger.Warn(
				"Failed to fetch transaction receipt",
				log.Stringer("txHash", txHash),
				log.Err(err),
			)
			return nil, false, err
		}
		return r, r != nil, nil
	}, cfg)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

// WithRetriesTimeout uses an exponential backoff to run the operation until it
// succeeds or timeout limit has been reached.
func WithRetriesTimeout(
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
	description string,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn(
			"operation failed, retrying...",
			log.String("operation", description),
			log.Stringer("retryIn", duration),
			log.Err(err),
		)
	}
	return backoff.RetryNotify(operation, expBackOff, notify)
}

// WithConstantRetries runs the operation until it succeeds, waiting a fixed
// delay between attempts. It only gives up when ctx is done or the operation
// returns a backoff.Permanent error.
func WithConstantRetries(
	ctx context.Context,
	logger log.Logger,
	operation backoff.Operation,
	delay time.Duration,
	description string,
) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(delay), ctx)
	notify := func(err error, duration time.Duration) {
		logger.Warn(
			"operation failed, retrying...",
			log.String("operation", description),
			log.Stringer("retryIn", duration),
			log.Err(err),
		)
	}
	return backoff.RetryNotify(operation, b, notify)
}

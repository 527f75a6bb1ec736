// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/paychan/utils"
)

// BlockNumber returns the latest published block number. The second result
// is false until the first successful poll.
func (m *Monitor) BlockNumber() (uint64, bool) {
	m.blockLock.Lock()
	defer m.blockLock.Unlock()

	return m.latest, m.hasBlock
}

// BlockNumbers returns a channel receiving each newly published block number.
// A slow reader only observes the most recent one. The channel is closed when
// ctx is done or the monitor is disposed.
func (m *Monitor) BlockNumbers(ctx context.Context) <-chan uint64 {
	ch := make(chan uint64, 1)

	m.blockLock.Lock()
	if m.ctx.Err() != nil {
		m.blockLock.Unlock()
		close(ch)
		return ch
	}
	m.nextSubID++
	id := m.nextSubID
	m.blockSubs[id] = ch
	if m.hasBlock {
		ch <- m.latest
	}
	m.blockLock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.blockLock.Lock()
		delete(m.blockSubs, id)
		close(ch)
		m.blockLock.Unlock()
	}()
	return ch
}

func (m *Monitor) runTracker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.BlockInterval)
	defer ticker.Stop()

	for {
		m.pollBlockNumber()
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollBlockNumber fetches the latest block number, retrying until it
// succeeds or the monitor is disposed, and publishes it.
func (m *Monitor) pollBlockNumber() {
	var latest uint64
	operation := func() error {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RPCTimeout)
		defer cancel()

		n, err := m.client.BlockNumber(ctx)
		if err != nil {
			m.metrics.failureCount.WithLabelValues(opBlockNumber).Inc()
			return err
		}
		latest = n
		return nil
	}
	err := utils.WithConstantRetries(m.ctx, m.logger, operation, m.cfg.RetryDelay, "fetch block number")
	if err != nil {
		// Only returned once the monitor is disposed
		return
	}
	m.publish(latest)
}

// publish records n as the latest block and wakes the scanner. Repeated
// values are dropped. A lower value is still published since the node is the
// only source of truth.
func (m *Monitor) publish(n uint64) {
	m.blockLock.Lock()
	if m.hasBlock && n == m.latest {
		m.blockLock.Unlock()
		return
	}
	if m.hasBlock && n < m.latest {
		m.metrics.blockNumberRegression.Inc()
		m.logger.Warn(
			"Block number went backwards",
			log.Uint64("previous", m.latest),
			log.Uint64("current", n),
		)
	}
	m.latest = n
	m.hasBlock = true
	m.metrics.latestBlockNumber.Set(float64(n))

	for _, ch := range m.blockSubs {
		// Replace a value the reader has not consumed yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- n:
		default:
		}
	}
	m.blockLock.Unlock()

	m.logger.Debug("Published block number", log.Uint64("blockNumber", n))
	m.signal()
}

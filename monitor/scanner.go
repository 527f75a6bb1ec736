// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"

	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/utils"
)

func (m *Monitor) runScanner() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.trigger:
		}

		// Nothing to scan against until the tracker published a block
		if _, ok := m.BlockNumber(); !ok {
			continue
		}

		operation := func() error {
			latest, _ := m.BlockNumber()
			err := m.scan(m.ctx, latest)
			if errors.Is(err, ErrDisposed) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := utils.WithConstantRetries(m.ctx, m.logger, operation, m.cfg.RetryDelay, "scan addresses"); err != nil {
			return
		}
		m.metrics.scanCycleCount.Inc()
	}
}

// scan brings every cursor up to latest. Addresses sharing a cursor are
// fetched with a single log range request. A group's cursors are committed
// only after its events were dispatched and the new state was persisted, so
// a failure redelivers the group's events on the next attempt.
func (m *Monitor) scan(ctx context.Context, latest uint64) error {
	st, err := m.store.load(ctx)
	if err != nil {
		return err
	}

	target := int64(latest)
	for _, group := range st.groups() {
		if group.cursor >= target {
			continue
		}
		if err := m.scanGroup(ctx, group, latest); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) scanGroup(ctx context.Context, group cursorGroup, latest uint64) error {
	query := chain.LogsQuery{
		FromBlock: uint64(group.cursor + 1),
		ToBlock:   latest,
		Addresses: group.addresses,
	}

	rpcCtx, cancel := context.WithTimeout(ctx, m.cfg.RPCTimeout)
	events, err := m.client.GetLogs(rpcCtx, query)
	cancel()
	m.metrics.logFetchCount.Inc()
	if err != nil {
		m.metrics.failureCount.WithLabelValues(opGetLogs).Inc()
		return fmt.Errorf("failed to get logs in [%d, %d]: %w", query.FromBlock, query.ToBlock, err)
	}

	for _, ev := range events {
		if n := m.bus.dispatch(ev); n > 0 {
			m.metrics.dispatchedEventCount.WithLabelValues(string(ev.Type)).Add(float64(n))
		}
	}

	target := int64(latest)
	st, _, err := m.store.update(ctx, func(s *State) bool {
		changed := false
		for _, addr := range group.addresses {
			// Skip addresses removed or re-added while the range was fetched
			i := s.index(addr)
			if i < 0 || s.Addresses[i].LastScanned != group.cursor {
				continue
			}
			s.Addresses[i].LastScanned = target
			changed = true
		}
		return changed
	})
	if err != nil {
		if !errors.Is(err, ErrDisposed) {
			m.metrics.failureCount.WithLabelValues(opPersist).Inc()
			m.logger.Error(
				"Failed to persist cursors, events will be redelivered",
				log.Uint64("blockNumber", latest),
				log.Err(err),
			)
		}
		return err
	}

	m.metrics.subscribedAddresses.Set(float64(len(st.Addresses)))
	m.logger.Debug(
		"Scanned addresses",
		log.Int("addresses", len(group.addresses)),
		log.Uint64("fromBlock", query.FromBlock),
		log.Uint64("toBlock", query.ToBlock),
		log.Int("events", len(events)),
	)
	return nil
}

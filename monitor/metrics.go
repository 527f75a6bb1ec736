// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons reported by rpc_failure_count
const (
	opBlockNumber = "block_number"
	opGetLogs     = "get_logs"
	opReceipt     = "transaction_receipt"
	opPersist     = "persist_state"
)

type monitorMetrics struct {
	latestBlockNumber     prometheus.Gauge
	subscribedAddresses   prometheus.Gauge
	scanCycleCount        prometheus.Counter
	logFetchCount         prometheus.Counter
	dispatchedEventCount  *prometheus.CounterVec
	failureCount          *prometheus.CounterVec
	blockNumberRegression prometheus.Counter
}

func newMonitorMetrics(registerer prometheus.Registerer) *monitorMetrics {
	m := monitorMetrics{
		latestBlockNumber: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_latest_block_number",
				Help: "Latest block number published by the block tracker",
			},
		),
		subscribedAddresses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_subscribed_addresses",
				Help: "Number of addresses whose logs are scanned",
			},
		),
		scanCycleCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_scan_cycle_count",
				Help: "Number of completed address scan cycles",
			},
		),
		logFetchCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_log_fetch_count",
				Help: "Number of log range requests issued",
			},
		),
		dispatchedEventCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_dispatched_event_count",
				Help: "Number of events dispatched to listeners",
			},
			[]string{"event_type"},
		),
		failureCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_failure_count",
				Help: "Number of failed operations that were retried",
			},
			[]string{"operation"},
		),
		blockNumberRegression: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_block_number_regression_count",
				Help: "Number of times the reported block number went backwards",
			},
		),
	}

	registerer.MustRegister(m.latestBlockNumber)
	registerer.MustRegister(m.subscribedAddresses)
	registerer.MustRegister(m.scanCycleCount)
	registerer.MustRegister(m.logFetchCount)
	registerer.MustRegister(m.dispatchedEventCount)
	registerer.MustRegister(m.failureCount)
	registerer.MustRegister(m.blockNumberRegression)

	return &m
}

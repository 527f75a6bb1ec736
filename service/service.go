// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service composes the monitor with the ledger lookups a payment
// channel node needs: gas price, nonces and receipts.
package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"

	"github.com/luxfi/paychan/cache"
	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/monitor"
)

const (
	DefaultGasPriceTTL      = 30 * time.Second
	DefaultReceiptCacheSize = 1024
	DefaultStaleAfter       = 2 * time.Minute

	gasPriceKey = "gasPrice"
)

var (
	errNoBlock    = errors.New("no block number observed yet")
	errStaleBlock = errors.New("block number has not advanced")
)

type Config struct {
	Monitor monitor.Config

	GasPriceTTL      time.Duration
	ReceiptCacheSize int
	// StaleAfter is how long the block number may stay unchanged before the
	// service reports itself unhealthy
	StaleAfter time.Duration
}

// Service is a monitor plus cached ledger lookups
type Service struct {
	*monitor.Monitor

	logger     log.Logger
	client     chain.Client
	staleAfter time.Duration
	gasPrice   *cache.TTLCache[string, *big.Int]
	receipts   *cache.LRUCache[common.Hash, *types.Receipt]

	// unix nanoseconds of the last block number change
	lastBlockAt atomic.Int64
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	disposeOnce sync.Once
}

func New(cfg Config) (*Service, error) {
	if cfg.GasPriceTTL <= 0 {
		cfg.GasPriceTTL = DefaultGasPriceTTL
	}
	if cfg.ReceiptCacheSize <= 0 {
		cfg.ReceiptCacheSize = DefaultReceiptCacheSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Monitor.Logger == nil {
		cfg.Monitor.Logger = log.NewNoOpLogger()
	}

	m, err := monitor.New(cfg.Monitor)
	if err != nil {
		return nil, err
	}

	client := cfg.Monitor.Client
	s := &Service{
		Monitor:    m,
		logger:     cfg.Monitor.Logger,
		client:     client,
		staleAfter: cfg.StaleAfter,
		gasPrice: cache.NewTTLCache[string, *big.Int](cfg.GasPriceTTL, func(ctx context.Context, _ string) (*big.Int, error) {
			return client.GasPrice(ctx)
		}),
	}
	s.receipts, err = cache.NewLRUCache[common.Hash, *types.Receipt](
		cfg.ReceiptCacheSize,
		client.TransactionReceipt,
		func(r *types.Receipt) bool { return r != nil },
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the monitor and the block freshness tracking used by the
// health check
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	blocks := s.BlockNumbers(ctx)
	s.Monitor.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for range blocks {
			s.lastBlockAt.Store(time.Now().UnixNano())
		}
	}()
}

func (s *Service) Dispose() {
	s.disposeOnce.Do(func() {
		s.Monitor.Dispose()
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// GasPrice returns the suggested gas price, cached for the configured TTL
func (s *Service) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := s.gasPrice.Get(ctx, gasPriceKey)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(price), nil
}

// TransactionCount returns the nonce to use for the next transaction of addr
func (s *Service) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return s.client.TransactionCount(ctx, addr)
}

// TransactionReceipt returns the receipt of a mined transaction, or nil if
// it is not mined yet. Receipts are cached once found.
func (s *Service) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return s.receipts.Get(ctx, txHash)
}

// HealthCheck fails until a block number was observed, and when it stopped
// changing for longer than the stale period
func (s *Service) HealthCheck(context.Context) error {
	if _, ok := s.BlockNumber(); !ok {
		return errNoBlock
	}
	last := s.lastBlockAt.Load()
	if last != 0 && time.Since(time.Unix(0, last)) > s.staleAfter {
		return errStaleBlock
	}
	return nil
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"

	"github.com/luxfi/paychan/utils"
)

var _ Client = (*EthClient)(nil)

// Backend is the subset of *ethclient.Client used by EthClient. It exists so
// tests can substitute a fake node.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EthClient implements Client over an EVM JSON-RPC node
type EthClient struct {
	backend Backend
	decoder *Decoder
	logger  log.Logger
	close   func()
}

// Dial connects to the node at rawURL
func Dial(ctx context.Context, logger log.Logger, rawURL string) (*EthClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	client, err := NewEthClient(logger, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	client.close = c.Close
	return client, nil
}

// DialWithRetries dials rawURL with an exponential backoff until it succeeds
// or timeout elapsed. The last dial error is returned.
func DialWithRetries(ctx context.Context, logger log.Logger, rawURL string, timeout time.Duration) (*EthClient, error) {
	var client *EthClient
	operation := func() error {
		c, err := Dial(ctx, logger, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		client = c
		return nil
	}
	if err := utils.WithRetriesTimeout(logger, operation, timeout, "dial "+rawURL); err != nil {
		return nil, err
	}
	return client, nil
}

// NewEthClient wraps backend
func NewEthClient(logger log.Logger, backend Backend) (*EthClient, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	return &EthClient{
		backend: backend,
		decoder: decoder,
		logger:  logger,
	}, nil
}

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

// GetLogs fetches and decodes logs. Logs that are not part of the known event
// set, or that were removed by a reorg, are skipped.
func (c *EthClient) GetLogs(ctx context.Context, q LogsQuery) ([]Event, error) {
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: q.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, ok, err := c.decoder.Decode(l)
		if err != nil {
			c.logger.Warn(
				"Failed to decode log",
				log.Stringer("txHash", l.TxHash),
				log.Stringer("address", l.Address),
				log.Err(err),
			)
			continue
		}
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *EthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

func (c *EthClient) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	return c.backend.NonceAt(ctx, addr, nil)
}

func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.backend.SuggestGasPrice(ctx)
}

// Decoder returns the event decoder used for logs
func (c *EthClient) Decoder() *Decoder {
	return c.decoder
}

// Close releases the underlying connection when the client was dialed
func (c *EthClient) Close() {
	if c.close != nil {
		c.close()
	}
}

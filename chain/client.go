// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain defines the ledger RPC capability consumed by the monitor
// and an adapter for EVM JSON-RPC nodes.
package chain

import (
	"context"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// LogsQuery selects the logs emitted by Addresses in the inclusive block
// range [FromBlock, ToBlock].
type LogsQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
}

// Client is the subset of ledger RPC used by the monitor
type Client interface {
	// BlockNumber returns the latest block number
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs returns the decoded events matching q, in ledger order
	GetLogs(ctx context.Context, q LogsQuery) ([]Event, error)

	// TransactionReceipt returns nil, nil while the transaction is not mined
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// TransactionCount returns the number of transactions sent from addr
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)

	GasPrice(ctx context.Context) (*big.Int, error)
}

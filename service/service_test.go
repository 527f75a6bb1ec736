// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/monitor"
	"github.com/luxfi/paychan/storage"
)

type fakeClient struct {
	lock          sync.Mutex
	blockNumber   uint64
	gasPriceCalls int
	receiptCalls  int
	receipts      map[common.Hash]*types.Receipt
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.blockNumber, nil
}

func (*fakeClient) GetLogs(context.Context, chain.LogsQuery) ([]chain.Event, error) {
	return nil, nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.receiptCalls++
	return f.receipts[txHash], nil
}

func (*fakeClient) TransactionCount(context.Context, common.Address) (uint64, error) {
	return 4, nil
}

func (f *fakeClient) GasPrice(context.Context) (*big.Int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.gasPriceCalls++
	return big.NewInt(25_000_000_000), nil
}

func newTestService(t *testing.T, client *fakeClient) *Service {
	t.Helper()
	s, err := New(Config{
		Monitor: monitor.Config{
			Primary:       common.HexToAddress("0x00000000000000000000000000000000000000a1"),
			Client:        client,
			Storage:       storage.NewMemory(),
			BlockInterval: 10 * time.Millisecond,
			RetryDelay:    5 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s
}

func TestGasPriceCached(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{}
	s := newTestService(t, client)

	price, err := s.GasPrice(context.Background())
	require.NoError(err)
	require.Equal(big.NewInt(25_000_000_000), price)

	// Callers cannot alter the cached value
	price.SetUint64(0)

	price, err = s.GasPrice(context.Background())
	require.NoError(err)
	require.Equal(big.NewInt(25_000_000_000), price)
	require.Equal(1, client.gasPriceCalls)
}

func TestTransactionReceiptCached(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	txHash := common.HexToHash("0x01")
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{}}
	s := newTestService(t, client)

	receipt, err := s.TransactionReceipt(ctx, txHash)
	require.NoError(err)
	require.Nil(receipt)

	client.receipts[txHash] = &types.Receipt{TxHash: txHash}
	for i := 0; i < 3; i++ {
		receipt, err = s.TransactionReceipt(ctx, txHash)
		require.NoError(err)
		require.Equal(txHash, receipt.TxHash)
	}
	require.Equal(2, client.receiptCalls)

	count, err := s.TransactionCount(ctx, common.Address{})
	require.NoError(err)
	require.Equal(uint64(4), count)
}

func TestHealthCheck(t *testing.T) {
	require := require.New(t)

	s := newTestService(t, &fakeClient{blockNumber: 7})
	handler := HealthHandler(s.HealthCheck)

	require.ErrorIs(s.HealthCheck(context.Background()), errNoBlock)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(http.StatusServiceUnavailable, rec.Code)

	s.Start()
	require.Eventually(func() bool {
		return s.HealthCheck(context.Background()) == nil
	}, 5*time.Second, 5*time.Millisecond)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(http.StatusOK, rec.Code)

	// The block number never changes, so the service eventually goes stale
	s.staleAfter = 10 * time.Millisecond
	require.Eventually(func() bool {
		return errors.Is(s.HealthCheck(context.Background()), errStaleBlock)
	}, 5*time.Second, 5*time.Millisecond)
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/storage"
)

var (
	testPrimary = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testOther   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fakeClient struct {
	lock        sync.Mutex
	blockNumber uint64
	blockErr    error
	logs        func(chain.LogsQuery) ([]chain.Event, error)
	receipts    map[common.Hash]*types.Receipt
	receiptErr  error
	queries     []chain.LogsQuery
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.blockNumber, f.blockErr
}

func (f *fakeClient) setBlockNumber(n uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.blockNumber = n
}

func (f *fakeClient) setBlockErr(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.blockErr = err
}

func (f *fakeClient) GetLogs(_ context.Context, q chain.LogsQuery) ([]chain.Event, error) {
	f.lock.Lock()
	f.queries = append(f.queries, q)
	logs := f.logs
	f.lock.Unlock()

	if logs == nil {
		return nil, nil
	}
	return logs(q)
}

func (f *fakeClient) getQueries() []chain.LogsQuery {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]chain.LogsQuery(nil), f.queries...)
}

func (f *fakeClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipts[txHash], nil
}

func (*fakeClient) TransactionCount(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (*fakeClient) GasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

// flakyStorage wraps Memory and fails writes while failing is set
type flakyStorage struct {
	*storage.Memory

	lock    sync.Mutex
	failing bool
	writes  int
}

var errWriteFailed = errors.New("write failed")

func (s *flakyStorage) SetItem(ctx context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.failing {
		return errWriteFailed
	}
	s.writes++
	return s.Memory.SetItem(ctx, key, value)
}

func (s *flakyStorage) setFailing(failing bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failing = failing
}

func (s *flakyStorage) writeCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.writes
}

func newTestMonitor(t *testing.T, client chain.Client, s storage.Storage) *Monitor {
	t.Helper()
	m, err := New(Config{
		Primary:       testPrimary,
		Tokens:        []common.Address{testToken},
		Client:        client,
		Storage:       s,
		Logger:        log.NewNoOpLogger(),
		Registerer:    prometheus.NewRegistry(),
		BlockInterval: 10 * time.Millisecond,
		RetryDelay:    5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(m.Dispose)
	return m
}

func seedState(t *testing.T, s storage.Storage, st State) {
	t.Helper()
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	key := Config{Primary: testPrimary}.StorageKey()
	require.NoError(t, s.SetItem(context.Background(), key, string(raw)))
}

func loadStored(t *testing.T, s storage.Storage) State {
	t.Helper()
	raw, ok, err := s.GetItem(context.Background(), Config{Primary: testPrimary}.StorageKey())
	require.NoError(t, err)
	require.True(t, ok)
	var st State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	return st
}

func TestCursorJSON(t *testing.T) {
	require := require.New(t)

	data, err := json.Marshal(Cursor{Address: testPrimary, LastScanned: NeverScanned})
	require.NoError(err)
	buf := `{"type":"Buffer","data":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,161]}`
	require.JSONEq(`[`+buf+`,"-1"]`, string(data))

	var c Cursor
	require.NoError(json.Unmarshal([]byte(`["0x00000000000000000000000000000000000000a1","150"]`), &c))
	require.Equal(Cursor{Address: testPrimary, LastScanned: 150}, c)

	// Written cursors read back, and numeric blocks are accepted
	require.NoError(json.Unmarshal(data, &c))
	require.Equal(Cursor{Address: testPrimary, LastScanned: NeverScanned}, c)
	require.NoError(json.Unmarshal([]byte(`[`+buf+`,7]`), &c))
	require.Equal(Cursor{Address: testPrimary, LastScanned: 7}, c)

	for _, bad := range []string{
		`["0x01","1"]`,
		`["0x00000000000000000000000000000000000000a1"]`,
		`["0x00000000000000000000000000000000000000a1","x"]`,
		`["0x00000000000000000000000000000000000000a1","-2"]`,
		`[{"type":"Buffer","data":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,256]},"1"]`,
	} {
		require.Error(json.Unmarshal([]byte(bad), &c), bad)
	}
}

func TestStateGroups(t *testing.T) {
	st := State{Addresses: []Cursor{
		{Address: testPrimary, LastScanned: 10},
		{Address: testToken, LastScanned: NeverScanned},
		{Address: testOther, LastScanned: 10},
	}}
	require.Equal(t, []cursorGroup{
		{cursor: 10, addresses: []common.Address{testPrimary, testOther}},
		{cursor: NeverScanned, addresses: []common.Address{testToken}},
	}, st.groups())
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Storage: storage.NewMemory(), Primary: testPrimary})
	require.ErrorIs(t, err, errMissingClient)
	_, err = New(Config{Client: &fakeClient{}, Primary: testPrimary})
	require.ErrorIs(t, err, errMissingStorage)
	_, err = New(Config{Client: &fakeClient{}, Storage: storage.NewMemory()})
	require.ErrorIs(t, err, errMissingPrimary)
}

func TestFreshState(t *testing.T) {
	require := require.New(t)

	m := newTestMonitor(t, &fakeClient{}, storage.NewMemory())
	cursors, err := m.Cursors(context.Background())
	require.NoError(err)
	require.Equal([]Cursor{
		{Address: testPrimary, LastScanned: NeverScanned},
		{Address: testToken, LastScanned: NeverScanned},
	}, cursors)
}

func TestStoredStateWithoutPrimary(t *testing.T) {
	s := storage.NewMemory()
	seedState(t, s, State{Addresses: []Cursor{{Address: testOther, LastScanned: 3}}})

	m := newTestMonitor(t, &fakeClient{}, s)
	cursors, err := m.Cursors(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Cursor{
		{Address: testPrimary, LastScanned: NeverScanned},
		{Address: testOther, LastScanned: 3},
	}, cursors)
}

func TestScanGroupsByCursor(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := storage.NewMemory()
	seedState(t, s, State{Addresses: []Cursor{
		{Address: testPrimary, LastScanned: NeverScanned},
		{Address: testToken, LastScanned: 100},
	}})

	client := &fakeClient{}
	m := newTestMonitor(t, client, s)

	require.NoError(m.scan(ctx, 150))
	require.Equal([]chain.LogsQuery{
		{FromBlock: 0, ToBlock: 150, Addresses: []common.Address{testPrimary}},
		{FromBlock: 101, ToBlock: 150, Addresses: []common.Address{testToken}},
	}, client.getQueries())

	stored := loadStored(t, s)
	require.Equal([]Cursor{
		{Address: testPrimary, LastScanned: 150},
		{Address: testToken, LastScanned: 150},
	}, stored.Addresses)
	require.NotNil(stored.Transactions)

	// Cursors at the latest block are skipped, and the now shared cursor is
	// fetched with a single request
	require.NoError(m.scan(ctx, 150))
	require.Len(client.getQueries(), 2)

	require.NoError(m.scan(ctx, 160))
	queries := client.getQueries()
	require.Len(queries, 3)
	require.Equal(chain.LogsQuery{
		FromBlock: 151,
		ToBlock:   160,
		Addresses: []common.Address{testPrimary, testToken},
	}, queries[2])
}

func TestScanDispatchesInOrder(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{
		logs: func(chain.LogsQuery) ([]chain.Event, error) {
			return []chain.Event{
				{Type: chain.ChannelNew, BlockNumber: 1},
				{Type: chain.ChannelClosed, BlockNumber: 2},
				{Type: chain.ChannelNew, BlockNumber: 3},
			}, nil
		},
	}
	m := newTestMonitor(t, client, storage.NewMemory())

	var (
		first  []uint64
		second []uint64
		closed int
	)
	m.On(chain.ChannelNew, func(ev chain.Event) { first = append(first, ev.BlockNumber) })
	m.On(chain.ChannelNew, func(ev chain.Event) { second = append(second, ev.BlockNumber) })
	id := m.On(chain.ChannelClosed, func(chain.Event) { closed++ })
	m.On(chain.ChannelClosed, func(chain.Event) { panic("listener failure") })

	require.NoError(m.scan(context.Background(), 5))
	require.Equal([]uint64{1, 3}, first)
	require.Equal([]uint64{1, 3}, second)
	require.Equal(1, closed)

	require.True(m.Off(chain.ChannelClosed, id))
	require.False(m.Off(chain.ChannelClosed, id))
}

func TestRedeliveryOnPersistFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	client := &fakeClient{
		logs: func(chain.LogsQuery) ([]chain.Event, error) {
			return []chain.Event{{Type: chain.ChannelNew, BlockNumber: 3}}, nil
		},
	}
	s := &flakyStorage{Memory: storage.NewMemory()}
	m := newTestMonitor(t, client, s)

	delivered := 0
	m.On(chain.ChannelNew, func(chain.Event) { delivered++ })

	s.setFailing(true)
	require.ErrorIs(m.scan(ctx, 10), errWriteFailed)
	require.Equal(1, delivered)

	cursors, err := m.Cursors(ctx)
	require.NoError(err)
	for _, c := range cursors {
		require.Equal(NeverScanned, c.LastScanned)
	}

	s.setFailing(false)
	require.NoError(m.scan(ctx, 10))
	require.Equal(2, delivered)

	cursors, err = m.Cursors(ctx)
	require.NoError(err)
	for _, c := range cursors {
		require.Equal(int64(10), c.LastScanned)
	}
}

func TestScanFetchFailure(t *testing.T) {
	errRPC := errors.New("rpc down")
	client := &fakeClient{
		logs: func(chain.LogsQuery) ([]chain.Event, error) {
			return nil, errRPC
		},
	}
	s := &flakyStorage{Memory: storage.NewMemory()}
	m := newTestMonitor(t, client, s)

	require.ErrorIs(t, m.scan(context.Background(), 10), errRPC)
	require.Zero(t, s.writeCount())
}

func TestSubscribeAddress(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := storage.NewMemory()
	m := newTestMonitor(t, &fakeClient{}, s)

	added, err := m.SubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.True(added)

	added, err = m.SubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.False(added)

	stored := loadStored(t, s)
	require.Equal([]Cursor{
		{Address: testPrimary, LastScanned: NeverScanned},
		{Address: testToken, LastScanned: NeverScanned},
		{Address: testOther, LastScanned: NeverScanned},
	}, stored.Addresses)

	removed, err := m.UnsubscribeAddress(ctx, testPrimary)
	require.NoError(err)
	require.False(removed)

	removed, err = m.UnsubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.True(removed)

	removed, err = m.UnsubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.False(removed)

	stored = loadStored(t, s)
	require.Len(stored.Addresses, 2)
}

func TestSubscriptionChangesTriggerScan(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	m := newTestMonitor(t, &fakeClient{}, storage.NewMemory())
	require.Empty(m.trigger)

	added, err := m.SubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.True(added)
	require.Len(m.trigger, 1)
	<-m.trigger

	added, err = m.SubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.False(added)
	require.Empty(m.trigger)

	removed, err := m.UnsubscribeAddress(ctx, testPrimary)
	require.NoError(err)
	require.False(removed)
	require.Empty(m.trigger)

	removed, err = m.UnsubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.True(removed)
	require.Len(m.trigger, 1)
	<-m.trigger

	removed, err = m.UnsubscribeAddress(ctx, testOther)
	require.NoError(err)
	require.False(removed)
	require.Empty(m.trigger)
}

func TestNoPersistenceAfterDispose(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := &flakyStorage{Memory: storage.NewMemory()}
	m := newTestMonitor(t, &fakeClient{}, s)
	m.Start()
	m.Dispose()
	m.Dispose()

	writes := s.writeCount()
	_, err := m.SubscribeAddress(ctx, testOther)
	require.ErrorIs(err, ErrDisposed)
	require.ErrorIs(m.scan(ctx, 100), ErrDisposed)
	require.Equal(writes, s.writeCount())

	// Start after dispose does nothing
	m.Start()
	_, ok := <-m.BlockNumbers(ctx)
	require.False(ok)
}

func TestPublishDeduplicates(t *testing.T) {
	require := require.New(t)

	m := newTestMonitor(t, &fakeClient{}, storage.NewMemory())
	_, ok := m.BlockNumber()
	require.False(ok)

	ctx, cancel := context.WithCancel(context.Background())
	blocks := m.BlockNumbers(ctx)

	m.publish(10)
	require.Equal(uint64(10), <-blocks)

	m.publish(10)
	select {
	case n := <-blocks:
		require.FailNow("unexpected block", n)
	default:
	}

	// Regressions are published
	m.publish(9)
	require.Equal(uint64(9), <-blocks)
	n, ok := m.BlockNumber()
	require.True(ok)
	require.Equal(uint64(9), n)

	// A slow reader only sees the newest value
	m.publish(11)
	m.publish(12)
	require.Equal(uint64(12), <-blocks)

	cancel()
	require.Eventually(func() bool {
		_, open := <-blocks
		return !open
	}, time.Second, time.Millisecond)
}

func TestMonitorScansNewBlocks(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{
		blockNumber: 5,
		logs: func(q chain.LogsQuery) ([]chain.Event, error) {
			return []chain.Event{{Type: chain.ChannelNew, BlockNumber: q.ToBlock}}, nil
		},
	}
	m := newTestMonitor(t, client, storage.NewMemory())

	var (
		lock   sync.Mutex
		blocks []uint64
	)
	m.On(chain.ChannelNew, func(ev chain.Event) {
		lock.Lock()
		defer lock.Unlock()
		blocks = append(blocks, ev.BlockNumber)
	})
	m.Start()

	require.Eventually(func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(blocks) > 0 && blocks[0] == 5
	}, 5*time.Second, 5*time.Millisecond)

	client.setBlockNumber(8)
	require.Eventually(func() bool {
		cursors, err := m.Cursors(context.Background())
		require.NoError(err)
		for _, c := range cursors {
			if c.LastScanned != 8 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	// Subscribing forces a scan of the new address from genesis
	added, err := m.SubscribeAddress(context.Background(), testOther)
	require.NoError(err)
	require.True(added)
	require.Eventually(func() bool {
		for _, q := range client.getQueries() {
			if q.FromBlock == 0 && len(q.Addresses) == 1 && q.Addresses[0] == testOther {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

func TestTrackerRetriesBlockNumber(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{blockNumber: 4, blockErr: errors.New("node unavailable")}
	m := newTestMonitor(t, client, storage.NewMemory())
	m.Start()

	time.Sleep(50 * time.Millisecond)
	_, ok := m.BlockNumber()
	require.False(ok)
	require.Empty(client.getQueries())

	client.setBlockErr(nil)
	require.Eventually(func() bool {
		n, ok := m.BlockNumber()
		return ok && n == 4
	}, 5*time.Second, 5*time.Millisecond)
}

func TestScannerRetriesFailedCycle(t *testing.T) {
	require := require.New(t)

	const failures = 3
	var (
		lock  sync.Mutex
		calls int
	)
	client := &fakeClient{
		blockNumber: 6,
		logs: func(q chain.LogsQuery) ([]chain.Event, error) {
			lock.Lock()
			defer lock.Unlock()
			calls++
			if calls <= failures {
				return nil, errors.New("logs unavailable")
			}
			return []chain.Event{{Type: chain.ChannelNew, BlockNumber: q.ToBlock}}, nil
		},
	}
	m := newTestMonitor(t, client, storage.NewMemory())

	var (
		eventsLock sync.Mutex
		events     []chain.Event
	)
	m.On(chain.ChannelNew, func(ev chain.Event) {
		eventsLock.Lock()
		defer eventsLock.Unlock()
		events = append(events, ev)
	})
	m.Start()

	require.Eventually(func() bool {
		cursors, err := m.Cursors(context.Background())
		require.NoError(err)
		for _, c := range cursors {
			if c.LastScanned != 6 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	require.GreaterOrEqual(len(client.getQueries()), failures+1)
	eventsLock.Lock()
	defer eventsLock.Unlock()
	require.Len(events, 1)
	require.Equal(uint64(6), events[0].BlockNumber)
}

func TestTrackerSkipsRepeatedBlock(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{blockNumber: 5}
	m := newTestMonitor(t, client, storage.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	blocks := m.BlockNumbers(ctx)
	m.Start()

	require.Equal(uint64(5), <-blocks)

	// Several polls return the same block
	time.Sleep(100 * time.Millisecond)
	select {
	case n := <-blocks:
		require.FailNow("unexpected block", n)
	default:
	}
	require.Len(client.getQueries(), 1)
}

func TestAsStream(t *testing.T) {
	require := require.New(t)

	client := &fakeClient{
		blockNumber: 3,
		logs: func(chain.LogsQuery) ([]chain.Event, error) {
			return []chain.Event{
				{Type: chain.ChannelNew, BlockNumber: 1},
				{Type: chain.Transfer, BlockNumber: 2},
				{Type: chain.ChannelDeleted, BlockNumber: 3},
			}, nil
		},
	}
	m := newTestMonitor(t, client, storage.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	events := m.AsStream(ctx, chain.ChannelNew, chain.ChannelDeleted)
	m.Start()

	first := <-events
	require.Equal(chain.ChannelNew, first.Type)
	second := <-events
	require.Equal(chain.ChannelDeleted, second.Type)

	cancel()
	require.Eventually(func() bool {
		for {
			select {
			case _, open := <-events:
				if !open {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}

func TestAsStreamClosedOnDispose(t *testing.T) {
	m := newTestMonitor(t, &fakeClient{}, storage.NewMemory())
	events := m.AsStream(context.Background(), chain.ChannelNew)
	m.Dispose()

	_, open := <-events
	require.False(t, open)
}

func TestWaitFor(t *testing.T) {
	ctx := context.Background()
	cfg := WaitConfig{Interval: time.Millisecond, Timeout: time.Second}

	t.Run("success", func(t *testing.T) {
		calls := 0
		v, err := WaitFor(ctx, func(context.Context) (int, bool, error) {
			calls++
			return calls, calls == 3, nil
		}, cfg)
		require.NoError(t, err)
		require.Equal(t, 3, v)
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := WaitFor(ctx, func(context.Context) (int, bool, error) {
			return 0, false, nil
		}, WaitConfig{Interval: time.Millisecond, Timeout: 20 * time.Millisecond})
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("error", func(t *testing.T) {
		errAction := errors.New("action failed")
		_, err := WaitFor(ctx, func(context.Context) (int, bool, error) {
			return 0, false, errAction
		}, cfg)
		require.ErrorIs(t, err, errAction)
	})

	t.Run("retried error", func(t *testing.T) {
		calls := 0
		v, err := WaitFor(ctx, func(context.Context) (string, bool, error) {
			calls++
			if calls < 3 {
				return "", false, errors.New("transient")
			}
			return "done", true, nil
		}, WaitConfig{Interval: time.Millisecond, Timeout: time.Second, RetryDelay: time.Millisecond})
		require.NoError(t, err)
		require.Equal(t, "done", v)
	})

	t.Run("result at deadline", func(t *testing.T) {
		v, err := WaitFor(ctx, func(context.Context) (string, bool, error) {
			time.Sleep(30 * time.Millisecond)
			return "late", true, nil
		}, WaitConfig{Interval: time.Millisecond, Timeout: 10 * time.Millisecond})
		require.NoError(t, err)
		require.Equal(t, "late", v)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := WaitFor(cctx, func(context.Context) (int, bool, error) {
			return 0, false, nil
		}, cfg)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestWaitForTransaction(t *testing.T) {
	require := require.New(t)

	txHash := common.HexToHash("0x01")
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{}}
	m := newTestMonitor(t, client, storage.NewMemory())

	go func() {
		time.Sleep(20 * time.Millisecond)
		client.lock.Lock()
		client.receipts[txHash] = &types.Receipt{TxHash: txHash, Status: types.ReceiptStatusSuccessful}
		client.lock.Unlock()
	}()

	receipt, err := m.WaitForTransaction(context.Background(), txHash, WaitConfig{
		Interval: time.Millisecond,
		Timeout:  5 * time.Second,
	})
	require.NoError(err)
	require.Equal(txHash, receipt.TxHash)

	_, err = m.WaitForTransaction(context.Background(), common.HexToHash("0x02"), WaitConfig{
		Interval: time.Millisecond,
		Timeout:  20 * time.Millisecond,
	})
	require.ErrorIs(err, ErrTimeout)
}

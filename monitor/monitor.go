// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package monitor follows a set of contract addresses on the ledger. A block
// tracker polls the latest block number and a single scanner fetches the logs
// emitted since each address's persisted cursor, dispatching them to the
// registered listeners.
//
// Delivery is at-least-once: cursors advance only after the listeners for a
// range ran and the new cursors were persisted. Listeners must tolerate
// repeated events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/paychan/chain"
	"github.com/luxfi/paychan/storage"
)

const (
	DefaultKeyPrefix         = "___ETH_MONITORING___"
	DefaultBlockInterval     = 5 * time.Second
	DefaultRetryDelay        = 1 * time.Second
	DefaultReceiptRetryDelay = 3 * time.Second
	DefaultRPCTimeout        = 30 * time.Second

	defaultStreamBuffer = 64
)

var (
	ErrDisposed = errors.New("monitor disposed")

	errMissingClient  = errors.New("monitor requires a chain client")
	errMissingStorage = errors.New("monitor requires a storage")
	errMissingPrimary = errors.New("monitor requires a primary address")
)

// Config configures a Monitor. Zero durations take their defaults.
type Config struct {
	// Primary is the channel manager address. It is always monitored.
	Primary common.Address
	// Tokens are monitored next to Primary when no state was persisted yet
	Tokens []common.Address

	Client  chain.Client
	Storage storage.Storage

	Logger     log.Logger
	Registerer prometheus.Registerer

	BlockInterval     time.Duration
	RetryDelay        time.Duration
	ReceiptRetryDelay time.Duration
	RPCTimeout        time.Duration
	KeyPrefix         string
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = log.NewNoOpLogger()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.BlockInterval <= 0 {
		c.BlockInterval = DefaultBlockInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ReceiptRetryDelay <= 0 {
		c.ReceiptRetryDelay = DefaultReceiptRetryDelay
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
}

func (c *Config) validate() error {
	switch {
	case c.Client == nil:
		return errMissingClient
	case c.Storage == nil:
		return errMissingStorage
	case c.Primary == (common.Address{}):
		return errMissingPrimary
	}
	return nil
}

// StorageKey returns the key the monitoring state is persisted under
func (c Config) StorageKey() string {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + strings.ToLower(c.Primary.Hex())
}

type Monitor struct {
	cfg     Config
	logger  log.Logger
	client  chain.Client
	store   *stateStore
	bus     *eventBus
	metrics *monitorMetrics

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once
	disposeOnce sync.Once

	// trigger wakes the scanner. Its capacity of one coalesces signals
	// raised while a cycle is running.
	trigger chan struct{}

	blockLock sync.Mutex
	latest    uint64
	hasBlock  bool
	nextSubID uint64
	blockSubs map[uint64]chan uint64
}

// New creates a monitor. Listeners registered before Start observe every
// event of the first scan.
func New(cfg Config) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:     cfg,
		logger:  cfg.Logger,
		client:  cfg.Client,
		bus:     newEventBus(cfg.Logger),
		metrics: newMonitorMetrics(cfg.Registerer),
		store: newStateStore(
			cfg.Logger,
			cfg.Storage,
			cfg.StorageKey(),
			cfg.Primary,
			cfg.Tokens,
		),
		ctx:       ctx,
		cancel:    cancel,
		trigger:   make(chan struct{}, 1),
		blockSubs: make(map[uint64]chan uint64),
	}
	return m, nil
}

// Start launches the block tracker and the address scanner. It is a no-op
// after the first call or once the monitor is disposed.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		if m.ctx.Err() != nil {
			return
		}
		m.logger.Info(
			"Starting monitor",
			log.Stringer("primary", m.cfg.Primary),
			log.String("storageKey", m.cfg.StorageKey()),
		)
		m.wg.Add(2)
		go m.runTracker()
		go m.runScanner()
	})
}

// Dispose stops both loops and waits for them to exit. No state is persisted
// once it returns. It must not be called from a listener.
func (m *Monitor) Dispose() {
	m.disposeOnce.Do(func() {
		m.store.close()
		m.cancel()
		m.wg.Wait()
		m.logger.Info("Monitor disposed", log.Stringer("primary", m.cfg.Primary))
	})
}

// SubscribeAddress adds addr to the monitored set with a never scanned
// cursor and forces a scan. It returns false if addr was already monitored.
func (m *Monitor) SubscribeAddress(ctx context.Context, addr common.Address) (bool, error) {
	st, added, err := m.store.update(ctx, func(s *State) bool {
		if s.index(addr) >= 0 {
			return false
		}
		s.Addresses = append(s.Addresses, Cursor{Address: addr, LastScanned: NeverScanned})
		return true
	})
	if err != nil {
		return false, fmt.Errorf("failed to subscribe %s: %w", addr, err)
	}
	if !added {
		return false, nil
	}

	m.metrics.subscribedAddresses.Set(float64(len(st.Addresses)))
	m.logger.Debug("Subscribed address", log.Stringer("address", addr))
	m.signal()
	return true, nil
}

// UnsubscribeAddress stops monitoring addr and forces a scan. The primary
// address cannot be removed and false is returned for it, as for unknown
// addresses.
func (m *Monitor) UnsubscribeAddress(ctx context.Context, addr common.Address) (bool, error) {
	if addr == m.cfg.Primary {
		m.logger.Warn("Refusing to unsubscribe the primary address", log.Stringer("address", addr))
		return false, nil
	}

	st, removed, err := m.store.update(ctx, func(s *State) bool {
		i := s.index(addr)
		if i < 0 {
			return false
		}
		s.Addresses = append(s.Addresses[:i], s.Addresses[i+1:]...)
		return true
	})
	if err != nil {
		return false, fmt.Errorf("failed to unsubscribe %s: %w", addr, err)
	}
	if !removed {
		return false, nil
	}

	m.metrics.subscribedAddresses.Set(float64(len(st.Addresses)))
	m.logger.Debug("Unsubscribed address", log.Stringer("address", addr))
	m.signal()
	return true, nil
}

// Cursors returns a snapshot of the monitored addresses and their cursors
func (m *Monitor) Cursors(ctx context.Context) ([]Cursor, error) {
	st, err := m.store.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.Addresses, nil
}

// On registers fn for events of type typ
func (m *Monitor) On(typ chain.EventType, fn Listener) ListenerID {
	return m.bus.on(typ, fn)
}

// Off removes the listener registered under id. It reports whether a
// listener was removed.
func (m *Monitor) Off(typ chain.EventType, id ListenerID) bool {
	return m.bus.off(typ, id)
}

// AsStream returns a channel receiving events of the given types. The
// scanner blocks while the channel is full, so consumers must keep up. The
// channel is closed when ctx is done or the monitor is disposed.
func (m *Monitor) AsStream(ctx context.Context, types ...chain.EventType) <-chan chain.Event {
	return m.bus.stream(ctx, m.ctx.Done(), defaultStreamBuffer, types...)
}

// signal asks the scanner to run a cycle without waiting for a new block
func (m *Monitor) signal() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

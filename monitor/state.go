// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"

	"github.com/luxfi/paychan/storage"
)

// NeverScanned is the cursor of an address whose logs were never fetched
const NeverScanned int64 = -1

// Cursor is the last block whose logs were scanned for Address. It is
// persisted as the pair [{"type":"Buffer","data":[...]}, "<block>"].
type Cursor struct {
	Address     common.Address
	LastScanned int64
}

// addressBuffer is the tagged byte array form of an address
type addressBuffer struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func newAddressBuffer(addr common.Address) addressBuffer {
	data := make([]int, common.AddressLength)
	for i, b := range addr {
		data[i] = int(b)
	}
	return addressBuffer{Type: "Buffer", Data: data}
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{
		newAddressBuffer(c.Address),
		strconv.FormatInt(c.LastScanned, 10),
	})
}

// UnmarshalJSON also accepts hex string addresses and numeric block values
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("cursor must have 2 elements but got %d", len(pair))
	}

	addr, err := parseAddress(pair[0])
	if err != nil {
		return err
	}
	block := strings.Trim(string(pair[1]), `"`)
	n, err := strconv.ParseInt(block, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid cursor block %q: %w", block, err)
	}
	if n < NeverScanned {
		return fmt.Errorf("invalid cursor block %d", n)
	}

	c.Address = addr
	c.LastScanned = n
	return nil
}

func parseAddress(raw json.RawMessage) (common.Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.AddressLength {
			return common.Address{}, fmt.Errorf("invalid cursor address %q", s)
		}
		return common.BytesToAddress(b), nil
	}
	var buf addressBuffer
	if err := json.Unmarshal(raw, &buf); err != nil || len(buf.Data) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid cursor address %s", raw)
	}
	var addr common.Address
	for i, b := range buf.Data {
		if b < 0 || b > 0xff {
			return common.Address{}, fmt.Errorf("invalid cursor address byte %d", b)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}

// State is the persisted monitoring document
type State struct {
	Addresses []Cursor `json:"addresses"`
	// Transactions is kept for format compatibility and never populated
	Transactions []json.RawMessage `json:"transactions"`
}

func (s State) clone() State {
	out := State{
		Addresses:    make([]Cursor, len(s.Addresses)),
		Transactions: make([]json.RawMessage, len(s.Transactions)),
	}
	copy(out.Addresses, s.Addresses)
	copy(out.Transactions, s.Transactions)
	return out
}

func (s State) index(addr common.Address) int {
	for i, c := range s.Addresses {
		if c.Address == addr {
			return i
		}
	}
	return -1
}

// cursorGroup is a set of addresses sharing a cursor
type cursorGroup struct {
	cursor    int64
	addresses []common.Address
}

// groups partitions the addresses by cursor, in order of first appearance
func (s State) groups() []cursorGroup {
	var (
		out   []cursorGroup
		index = make(map[int64]int)
	)
	for _, c := range s.Addresses {
		i, ok := index[c.LastScanned]
		if !ok {
			i = len(out)
			index[c.LastScanned] = i
			out = append(out, cursorGroup{cursor: c.LastScanned})
		}
		out[i].addresses = append(out[i].addresses, c.Address)
	}
	return out
}

// stateStore owns the monitoring document. It is loaded lazily, every
// mutation rewrites the whole document, and an in-memory change is only
// committed once it was persisted.
type stateStore struct {
	logger   log.Logger
	storage  storage.Storage
	key      string
	primary  common.Address
	defaults State

	lock     sync.Mutex
	loaded   bool
	state    State
	disposed bool
}

func newStateStore(
	logger log.Logger,
	s storage.Storage,
	key string,
	primary common.Address,
	tokens []common.Address,
) *stateStore {
	defaults := State{
		Addresses:    []Cursor{{Address: primary, LastScanned: NeverScanned}},
		Transactions: []json.RawMessage{},
	}
	for _, token := range tokens {
		if defaults.index(token) >= 0 {
			continue
		}
		defaults.Addresses = append(defaults.Addresses, Cursor{Address: token, LastScanned: NeverScanned})
	}
	return &stateStore{
		logger:   logger,
		storage:  s,
		key:      key,
		primary:  primary,
		defaults: defaults,
	}
}

// load returns a copy of the current state, reading storage on first use
func (s *stateStore) load(ctx context.Context) (State, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return State{}, err
	}
	return s.state.clone(), nil
}

func (s *stateStore) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	raw, ok, err := s.storage.GetItem(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to read monitor state: %w", err)
	}

	state := s.defaults.clone()
	if ok && raw != "" {
		var stored State
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return fmt.Errorf("failed to parse monitor state: %w", err)
		}
		state = stored
		if state.Transactions == nil {
			state.Transactions = []json.RawMessage{}
		}
		// The primary address can never be dropped from the document
		if state.index(s.primary) < 0 {
			s.logger.Warn(
				"Stored monitor state is missing the primary address",
				log.Stringer("address", s.primary),
			)
			state.Addresses = append([]Cursor{{Address: s.primary, LastScanned: NeverScanned}}, state.Addresses...)
		}
	}

	s.state = state
	s.loaded = true
	return nil
}

// update applies fn to a copy of the state. If fn reports a change, the copy
// is persisted and then committed. The committed state is returned.
func (s *stateStore) update(ctx context.Context, fn func(*State) bool) (State, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.disposed {
		return State{}, false, ErrDisposed
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return State{}, false, err
	}

	next := s.state.clone()
	if !fn(&next) {
		return s.state.clone(), false, nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return State{}, false, fmt.Errorf("failed to marshal monitor state: %w", err)
	}
	if err := s.storage.SetItem(ctx, s.key, string(raw)); err != nil {
		return State{}, false, fmt.Errorf("failed to persist monitor state: %w", err)
	}

	s.state = next
	return next.clone(), true, nil
}

// close prevents any further persistence. It waits for an in-flight update.
func (s *stateStore) close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.disposed = true
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/math/set"
)

// EventType names a contract event. The set is closed; see AllEventTypes.
type EventType string

// Netting channel events
const (
	ChannelNewBalance     EventType = "ChannelNewBalance"
	ChannelClosed         EventType = "ChannelClosed"
	TransferUpdated       EventType = "TransferUpdated"
	ChannelSettled        EventType = "ChannelSettled"
	ChannelSecretRevealed EventType = "ChannelSecretRevealed"
)

// Channel manager events
const (
	ChannelNew     EventType = "ChannelNew"
	ChannelDeleted EventType = "ChannelDeleted"
)

// Token events
const (
	Transfer EventType = "Transfer"
	Approval EventType = "Approval"
)

var (
	ChannelEvents = set.Of(ChannelNewBalance, ChannelClosed, TransferUpdated, ChannelSettled, ChannelSecretRevealed)
	ManagerEvents = set.Of(ChannelNew, ChannelDeleted)
	TokenEvents   = set.Of(Transfer, Approval)

	AllEventTypes = []EventType{
		ChannelNewBalance, ChannelClosed, TransferUpdated, ChannelSettled, ChannelSecretRevealed,
		ChannelNew, ChannelDeleted,
		Transfer, Approval,
	}

	errNoTopics = errors.New("log has no topics")
)

// Valid reports whether t belongs to the closed event set
func (t EventType) Valid() bool {
	return ChannelEvents.Contains(t) || ManagerEvents.Contains(t) || TokenEvents.Contains(t)
}

// EventsABI describes every event the monitor decodes
const EventsABI = `[
	{"type":"event","name":"ChannelNewBalance","anonymous":false,"inputs":[
		{"name":"token_address","type":"address","indexed":false},
		{"name":"participant","type":"address","indexed":false},
		{"name":"balance","type":"uint256","indexed":false}]},
	{"type":"event","name":"ChannelClosed","anonymous":false,"inputs":[
		{"name":"closing_address","type":"address","indexed":false}]},
	{"type":"event","name":"TransferUpdated","anonymous":false,"inputs":[
		{"name":"node_address","type":"address","indexed":false}]},
	{"type":"event","name":"ChannelSettled","anonymous":false,"inputs":[]},
	{"type":"event","name":"ChannelSecretRevealed","anonymous":false,"inputs":[
		{"name":"secret","type":"bytes32","indexed":false},
		{"name":"receiver_address","type":"address","indexed":false}]},
	{"type":"event","name":"ChannelNew","anonymous":false,"inputs":[
		{"name":"netting_channel","type":"address","indexed":false},
		{"name":"participant1","type":"address","indexed":false},
		{"name":"participant2","type":"address","indexed":false},
		{"name":"settle_timeout","type":"uint256","indexed":false}]},
	{"type":"event","name":"ChannelDeleted","anonymous":false,"inputs":[
		{"name":"caller_address","type":"address","indexed":false},
		{"name":"partner","type":"address","indexed":false}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"_from","type":"address","indexed":true},
		{"name":"_to","type":"address","indexed":true},
		{"name":"_value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[
		{"name":"_owner","type":"address","indexed":true},
		{"name":"_spender","type":"address","indexed":true},
		{"name":"_value","type":"uint256","indexed":false}]}
]`

// Event is a decoded contract log
type Event struct {
	Type        EventType
	Address     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	// Args holds the decoded event arguments keyed by ABI name
	Args map[string]any
	Raw  types.Log
}

// Decoder maps logs to events by their first topic
type Decoder struct {
	abi abi.ABI
}

// NewDecoder parses EventsABI
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(EventsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse events ABI: %w", err)
	}
	return &Decoder{abi: parsed}, nil
}

// EventID returns the topic identifying events of type t
func (d *Decoder) EventID(t EventType) (common.Hash, bool) {
	ev, ok := d.abi.Events[string(t)]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

// Decode decodes l. ok is false when l is not one of the known events.
func (d *Decoder) Decode(l types.Log) (Event, bool, error) {
	if len(l.Topics) == 0 {
		return Event{}, false, errNoTopics
	}
	ev, err := d.abi.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, false, nil
	}

	args := make(map[string]any, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return Event{}, false, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			return Event{}, false, fmt.Errorf("failed to parse %s topics: %w", ev.Name, err)
		}
	}

	return Event{
		Type:        EventType(ev.Name),
		Address:     l.Address,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
		Args:        args,
		Raw:         l,
	}, true, nil
}

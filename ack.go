// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var _ Message = Ack{}

// Ack confirms delivery of the message with MsgID. It is not signed.
type Ack struct {
	To          common.Address
	MessageHash common.Hash
	MsgID       uint256.Int
}

func (Ack) ClassType() string { return ClassAck }

// NewAck acknowledges msg on behalf of its recipient to
func NewAck(to common.Address, msgID uint256.Int, msg Signed) Ack {
	return Ack{
		To:          to,
		MessageHash: msg.Hash(),
		MsgID:       msgID,
	}
}

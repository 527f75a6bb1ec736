// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/paychan/pack"
)

var (
	_ ProofBody = DirectTransfer{}
	_ ProofBody = LockedTransfer{}
	_ ProofBody = MediatedTransfer{}
)

// transferPacker packs msgID, nonce, transferredAmount, channelAddress,
// locksRoot and to, the common prefix of all transfer message hashes.
func transferPacker(size int, msgID *uint256.Int, p *ProofFields, to common.Address) *pack.Packer {
	return pack.New(size).
		Uint256(msgID).
		Uint256(&p.Nonce).
		Uint256(&p.TransferredAmount).
		Address(p.ChannelAddress).
		Bytes32(p.LocksRoot).
		Address(to)
}

const transferPrefixLen = 3*pack.Uint256Len + 2*pack.AddressLen + pack.Bytes32Len

// DirectTransfer moves transferredAmount to the counterparty without a lock
type DirectTransfer struct {
	ProofFields
	MsgID uint256.Int
	To    common.Address
}

func (DirectTransfer) ClassType() string { return ClassDirectTransfer }

// MessageHash returns keccak256(msgID, nonce, transferredAmount, channelAddress, locksRoot, to)
func (d DirectTransfer) MessageHash() common.Hash {
	return transferPacker(transferPrefixLen, &d.MsgID, &d.ProofFields, d.To).Keccak256()
}

func (d DirectTransfer) Hash() common.Hash {
	return d.hashWith(d.MessageHash())
}

// LockedTransfer adds a hash-time lock to a direct transfer
type LockedTransfer struct {
	ProofFields
	MsgID uint256.Int
	To    common.Address
	Lock  Lock
}

func (LockedTransfer) ClassType() string { return ClassLockedTransfer }

// MessageHash extends the direct transfer pre-image with lock.MessageHash()
func (l LockedTransfer) MessageHash() common.Hash {
	return transferPacker(transferPrefixLen+pack.Bytes32Len, &l.MsgID, &l.ProofFields, l.To).
		Bytes32(l.Lock.MessageHash()).
		Keccak256()
}

func (l LockedTransfer) Hash() common.Hash {
	return l.hashWith(l.MessageHash())
}

// MediatedTransfer is a locked transfer routed through intermediaries
// towards Target on behalf of Initiator.
type MediatedTransfer struct {
	ProofFields
	MsgID     uint256.Int
	To        common.Address
	Lock      Lock
	Target    common.Address
	Initiator common.Address
}

func (MediatedTransfer) ClassType() string { return ClassMediatedTransfer }

// MessageHash returns keccak256(msgID, nonce, transferredAmount,
// channelAddress, locksRoot, to, target, initiator, lock.MessageHash())
func (m MediatedTransfer) MessageHash() common.Hash {
	return transferPacker(transferPrefixLen+2*pack.AddressLen+pack.Bytes32Len, &m.MsgID, &m.ProofFields, m.To).
		Address(m.Target).
		Address(m.Initiator).
		Bytes32(m.Lock.MessageHash()).
		Keccak256()
}

func (m MediatedTransfer) Hash() common.Hash {
	return m.hashWith(m.MessageHash())
}

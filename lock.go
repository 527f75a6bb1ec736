// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/paychan/pack"
)

const (
	lockLen     = 2*pack.Uint256Len + pack.Bytes32Len
	openLockLen = lockLen + pack.Bytes32Len
)

var (
	_ Message = Lock{}
	_ Message = OpenLock{}
)

// Lock is a hash-time lock on part of a channel's balance
type Lock struct {
	Amount     uint256.Int
	Expiration uint256.Int
	HashLock   common.Hash
}

func (Lock) ClassType() string { return ClassLock }

func (l Lock) packer(size int) *pack.Packer {
	return pack.New(size).
		Uint256(&l.Amount).
		Uint256(&l.Expiration).
		Bytes32(l.HashLock)
}

// MessageHash returns keccak256(amount, expiration, hashLock)
func (l Lock) MessageHash() common.Hash {
	return l.packer(lockLen).Keccak256()
}

// Encode returns the packed (amount, expiration, hashLock) leaf used in
// locks-root merkle trees.
func (l Lock) Encode() []byte {
	return l.packer(lockLen).Bytes()
}

// OpenLock is a lock whose secret has been revealed
type OpenLock struct {
	Lock
	Secret common.Hash
}

func (OpenLock) ClassType() string { return ClassOpenLock }

// Encode returns the packed (amount, expiration, hashLock, secret)
func (l OpenLock) Encode() []byte {
	return l.packer(openLockLen).Bytes32(l.Secret).Bytes()
}

// Unlocks reports whether the secret opens the hash lock
func (l OpenLock) Unlocks() bool {
	return Keccak256(l.Secret[:]) == l.HashLock
}

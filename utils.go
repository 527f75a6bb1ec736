// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Constants
const (
	// KiB is 1024 bytes
	KiB = 1024

	// MaxMessageSize bounds a serialized message accepted by Deserialize
	MaxMessageSize = 64 * KiB

	// SignatureLen is the length of a serialized R || S || V signature
	SignatureLen = 65
)

// Keccak256 computes the keccak-256 hash of the concatenated inputs
func Keccak256(data ...[]byte) common.Hash {
	return common.Hash(crypto.Keccak256Hash(data...))
}

// NewUint returns v as a uint256 value for use in message literals
func NewUint(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

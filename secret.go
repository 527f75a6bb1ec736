// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"crypto/rand"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/paychan/pack"
)

var (
	_ Body      = RequestSecret{}
	_ Body      = RevealSecret{}
	_ ProofBody = SecretToProof{}
)

// RequestSecret asks the initiator of a mediated transfer for its secret
type RequestSecret struct {
	MsgID    uint256.Int
	To       common.Address
	HashLock common.Hash
	Amount   uint256.Int
}

func (RequestSecret) ClassType() string { return ClassRequestSecret }

// Hash returns keccak256(msgID, to, hashLock, amount). The lock expiration
// is left out since hops may lower it.
func (r RequestSecret) Hash() common.Hash {
	return pack.New(2*pack.Uint256Len+pack.AddressLen+pack.Bytes32Len).
		Uint256(&r.MsgID).
		Address(r.To).
		Bytes32(r.HashLock).
		Uint256(&r.Amount).
		Keccak256()
}

// RevealSecret answers a RequestSecret
type RevealSecret struct {
	MsgID  uint256.Int
	Secret common.Hash
	To     common.Address
}

func (RevealSecret) ClassType() string { return ClassRevealSecret }

// Hash returns keccak256(secret, to)
func (r RevealSecret) Hash() common.Hash {
	return pack.New(pack.Bytes32Len + pack.AddressLen).
		Bytes32(r.Secret).
		Address(r.To).
		Keccak256()
}

// HashLock returns keccak256(secret)
func (r RevealSecret) HashLock() common.Hash {
	return Keccak256(r.Secret[:])
}

// SecretToProof folds an unlocked lock into transferredAmount and removes it
// from the locks root, so channels need not be settled at lock expiration.
type SecretToProof struct {
	ProofFields
	MsgID  uint256.Int
	To     common.Address
	Secret common.Hash
}

func (SecretToProof) ClassType() string { return ClassSecretToProof }

// MessageHash returns keccak256(msgID, nonce, transferredAmount,
// channelAddress, locksRoot, to, secret)
func (s SecretToProof) MessageHash() common.Hash {
	return transferPacker(transferPrefixLen+pack.Bytes32Len, &s.MsgID, &s.ProofFields, s.To).
		Bytes32(s.Secret).
		Keccak256()
}

func (s SecretToProof) Hash() common.Hash {
	return s.hashWith(s.MessageHash())
}

// HashLock returns keccak256(secret)
func (s SecretToProof) HashLock() common.Hash {
	return Keccak256(s.Secret[:])
}

// SecretHashPair is a lock secret and its keccak-256 hash lock
type SecretHashPair struct {
	Secret common.Hash
	Hash   common.Hash
}

// GenerateRandomSecretHashPair draws a 32 byte secret from the OS CSPRNG
func GenerateRandomSecretHashPair() (SecretHashPair, error) {
	var secret common.Hash
	if _, err := rand.Read(secret[:]); err != nil {
		return SecretHashPair{}, fmt.Errorf("failed to read random secret: %w", err)
	}
	return SecretHashPair{
		Secret: secret,
		Hash:   Keccak256(secret[:]),
	}, nil
}

// StartEntropyCollector is a no-op; crypto/rand is always seeded by the OS.
func StartEntropyCollector() {}

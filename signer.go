// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

var (
	_ Signer = (*signer)(nil)

	errNilKey = errors.New("nil private key")
)

// Signer produces recoverable signatures over 32 byte message hashes
type Signer interface {
	// Sign signs hash directly, without any message prefix
	Sign(hash common.Hash) (Signature, error)

	// Address returns the address recovered from signatures made by this signer
	Address() common.Address
}

// NewSigner creates a signer backed by an in-memory secp256k1 key
func NewSigner(sk *ecdsa.PrivateKey) (Signer, error) {
	if sk == nil {
		return nil, errNilKey
	}
	return &signer{
		sk:      sk,
		address: common.Address(crypto.PubkeyToAddress(sk.PublicKey)),
	}, nil
}

// NewSignerFromHex parses a hex encoded private key, with or without 0x prefix
func NewSignerFromHex(key string) (Signer, error) {
	sk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewSigner(sk)
}

type signer struct {
	sk      *ecdsa.PrivateKey
	address common.Address
}

func (s *signer) Sign(hash common.Hash) (Signature, error) {
	raw, err := crypto.Sign(hash[:], s.sk)
	if err != nil {
		return Signature{}, err
	}
	return SignatureFromBytes(raw)
}

func (s *signer) Address() common.Address {
	return s.address
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// recoveryOffset is added to the secp256k1 recovery id to form V
const recoveryOffset = 27

// Signature is a recoverable secp256k1 signature in ecsign layout
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// SignatureFromBytes parses a 65 byte R || S || V signature. V may be given
// either as a raw recovery id (0, 1) or offset by 27.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != SignatureLen {
		return Signature{}, fmt.Errorf("%w: expected %d bytes but got %d", ErrInvalidSignature, SignatureLen, len(b))
	}
	sig := Signature{V: b[64]}
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	if sig.V < recoveryOffset {
		sig.V += recoveryOffset
	}
	if sig.V != recoveryOffset && sig.V != recoveryOffset+1 {
		return Signature{}, fmt.Errorf("%w: invalid recovery value %d", ErrInvalidSignature, b[64])
	}
	return sig, nil
}

// Bytes returns R || S || V, the encoding expected by settlement contracts
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLen)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// Recover returns the address whose key produced s over hash
func (s Signature) Recover(hash common.Hash) (common.Address, error) {
	if s.V != recoveryOffset && s.V != recoveryOffset+1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery value %d", ErrInvalidSignature, s.V)
	}
	raw := s.Bytes()
	raw[64] -= recoveryOffset
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}

// Equal returns true if both signatures are identical
func (s Signature) Equal(other Signature) bool {
	return s == other
}

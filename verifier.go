// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"fmt"

	"github.com/luxfi/geth/common"
)

// Verifier accepts or rejects a decoded message before it is applied to
// channel state.
type Verifier interface {
	Verify(msg Signed) error
}

// SignerVerifier requires messages to be signed by a fixed counterparty
type SignerVerifier struct {
	Expected common.Address
}

// Verify recovers the signer of msg and compares it with Expected
func (v SignerVerifier) Verify(msg Signed) error {
	return VerifySigner(msg, v.Expected)
}

// VerifySigner returns ErrSignerMismatch unless msg was signed by expected
func VerifySigner(msg Signed, expected common.Address) error {
	from, err := msg.From()
	if err != nil {
		return err
	}
	if from != expected {
		return fmt.Errorf("%w: expected %s but got %s", ErrSignerMismatch, expected.Hex(), from.Hex())
	}
	return nil
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/paychan/pack"
)

// proofPreimageLen is nonce, transferredAmount, channelAddress, locksRoot, messageHash
const proofPreimageLen = 2*pack.Uint256Len + pack.AddressLen + 2*pack.Bytes32Len

// ProofFields is the balance state shared by every proof carrying message
type ProofFields struct {
	Nonce             uint256.Int
	TransferredAmount uint256.Int
	ChannelAddress    common.Address
	LocksRoot         common.Hash
}

// Fields returns a copy of the balance state
func (p ProofFields) Fields() ProofFields {
	return p
}

// hashWith is the settlement digest of the balance state bound to messageHash
func (p ProofFields) hashWith(messageHash common.Hash) common.Hash {
	return pack.New(proofPreimageLen).
		Uint256(&p.Nonce).
		Uint256(&p.TransferredAmount).
		Address(p.ChannelAddress).
		Bytes32(p.LocksRoot).
		Bytes32(messageHash).
		Keccak256()
}

// ProofBody is implemented by the message variants a Proof can be extracted
// from. Their Hash is the proof digest over MessageHash.
type ProofBody interface {
	Body
	Fields() ProofFields
	MessageHash() common.Hash
}

var _ Body = Proof{}

// Proof is a snapshot of a channel's balance state that can be submitted to
// the settlement contract.
type Proof struct {
	ProofFields
	MessageHash common.Hash
}

func (Proof) ClassType() string { return ClassProof }

// Hash returns keccak256(nonce, transferredAmount, channelAddress, locksRoot, messageHash)
func (p Proof) Hash() common.Hash {
	return p.hashWith(p.MessageHash)
}

// ToProof extracts the settlement proof of m. The proof's digest equals the
// message's, so the attached signature carries over unchanged.
func ToProof[T ProofBody](m *SignedMessage[T]) *SignedMessage[Proof] {
	body := m.Body()
	proof := Proof{
		ProofFields: body.Fields(),
		MessageHash: body.MessageHash(),
	}
	return newSignedMessageWithSignature(proof, m.signature.Load())
}

// TxData is the settlement argument set for a proof
type TxData struct {
	Nonce             uint256.Int
	TransferredAmount uint256.Int
	ExtraHash         common.Hash
	Signature         []byte
	LocksRoot         common.Hash
}

// ProofToTxData maps a proof onto settlement arguments. A nil proof yields
// the empty sentinel: zero nonce, zero amounts and all-zero byte fields.
func ProofToTxData(proof *SignedMessage[Proof]) TxData {
	if proof == nil {
		return TxData{Signature: make([]byte, SignatureLen)}
	}
	body := proof.Body()
	data := TxData{
		Nonce:             body.Nonce,
		TransferredAmount: body.TransferredAmount,
		ExtraHash:         body.MessageHash,
		LocksRoot:         body.LocksRoot,
	}
	if sig, ok := proof.Signature(); ok {
		data.Signature = sig.Bytes()
	} else {
		data.Signature = make([]byte, SignatureLen)
	}
	return data
}

// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"sync/atomic"

	"github.com/luxfi/geth/common"
)

// Class types used as the wire discriminator
const (
	ClassProof            = "Proof"
	ClassLock             = "Lock"
	ClassOpenLock         = "OpenLock"
	ClassDirectTransfer   = "DirectTransfer"
	ClassLockedTransfer   = "LockedTransfer"
	ClassMediatedTransfer = "MediatedTransfer"
	ClassRequestSecret    = "RequestSecret"
	ClassRevealSecret     = "RevealSecret"
	ClassSecretToProof    = "SecretToProof"
	ClassAck              = "Ack"
)

var (
	_ Signed = (*SignedMessage[Proof])(nil)
	_ Signed = (*SignedMessage[DirectTransfer])(nil)
	_ Signed = (*SignedMessage[LockedTransfer])(nil)
	_ Signed = (*SignedMessage[MediatedTransfer])(nil)
	_ Signed = (*SignedMessage[SecretToProof])(nil)
	_ Signed = (*SignedMessage[RequestSecret])(nil)
	_ Signed = (*SignedMessage[RevealSecret])(nil)
)

// Message is anything that travels over the wire tagged with a class type
type Message interface {
	ClassType() string
}

// Body is the field set of a signable message variant. Hash must be a pure
// function of the field values.
type Body interface {
	Message
	Hash() common.Hash
}

// Signed is the variant independent view of a SignedMessage
type Signed interface {
	Message

	// Hash returns the digest the signature covers
	Hash() common.Hash

	// Sign attaches a signature over Hash. A message can be signed once.
	Sign(s Signer) error

	// From recovers the signer address
	From() (common.Address, error)

	IsSigned() bool

	// Signature returns the attached signature, if any
	Signature() (Signature, bool)
}

// SignedMessage wraps a message body whose hash is computed once at
// construction. The body is held by value and only copies are handed out,
// so the signed digest can never drift from the fields.
type SignedMessage[T Body] struct {
	b         T
	hash      common.Hash
	signature atomic.Pointer[Signature]
}

// NewSignedMessage freezes body and its hash. The result is unsigned.
func NewSignedMessage[T Body](body T) *SignedMessage[T] {
	return &SignedMessage[T]{
		b:    body,
		hash: body.Hash(),
	}
}

// SignBody freezes body and signs it with s
func SignBody[T Body](body T, s Signer) (*SignedMessage[T], error) {
	m := NewSignedMessage(body)
	if err := m.Sign(s); err != nil {
		return nil, err
	}
	return m, nil
}

// newSignedMessageWithSignature is used when the signature was produced
// elsewhere, e.g. on decode or when a proof is extracted from a message.
func newSignedMessageWithSignature[T Body](body T, sig *Signature) *SignedMessage[T] {
	m := NewSignedMessage(body)
	if sig != nil {
		s := *sig
		m.signature.Store(&s)
	}
	return m
}

// Body returns a copy of the message fields
func (m *SignedMessage[T]) Body() T {
	return m.b
}

// ClassType returns the class type of the wrapped body
func (m *SignedMessage[T]) ClassType() string {
	return m.b.ClassType()
}

// Hash returns the frozen digest covered by the signature
func (m *SignedMessage[T]) Hash() common.Hash {
	return m.hash
}

// Sign signs the frozen hash. It fails with ErrAlreadySigned if a signature
// is already attached.
func (m *SignedMessage[T]) Sign(s Signer) error {
	if m.IsSigned() {
		return ErrAlreadySigned
	}
	sig, err := s.Sign(m.hash)
	if err != nil {
		return err
	}
	if !m.signature.CompareAndSwap(nil, &sig) {
		return ErrAlreadySigned
	}
	return nil
}

// IsSigned reports whether a signature is attached
func (m *SignedMessage[T]) IsSigned() bool {
	return m.signature.Load() != nil
}

// Signature returns the attached signature
func (m *SignedMessage[T]) Signature() (Signature, bool) {
	sig := m.signature.Load()
	if sig == nil {
		return Signature{}, false
	}
	return *sig, true
}

// From recovers the address that signed the message
func (m *SignedMessage[T]) From() (common.Address, error) {
	sig := m.signature.Load()
	if sig == nil {
		return common.Address{}, ErrUnsignedMessage
	}
	return sig.Recover(m.hash)
}

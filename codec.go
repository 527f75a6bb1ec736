// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
)

// DecodeFunc builds a message from its JSON document
type DecodeFunc func(data []byte) (Message, error)

// CodecImpl is used for serializing/deserializing channel messages. Decoding
// dispatches on the classType field through a registry of decoders.
type CodecImpl struct {
	lock     sync.RWMutex
	decoders map[string]DecodeFunc
}

// Codec is the default codec instance
var Codec = NewCodec()

// NewCodec returns a codec with every message variant registered
func NewCodec() *CodecImpl {
	c := &CodecImpl{decoders: make(map[string]DecodeFunc)}
	for classType, decode := range map[string]DecodeFunc{
		ClassProof:            decodeProof,
		ClassLock:             decodeLock,
		ClassOpenLock:         decodeLock,
		ClassDirectTransfer:   decodeProofMessage,
		ClassLockedTransfer:   decodeProofMessage,
		ClassMediatedTransfer: decodeProofMessage,
		ClassSecretToProof:    decodeProofMessage,
		ClassRequestSecret:    decodeRequestSecret,
		ClassRevealSecret:     decodeRevealSecret,
		ClassAck:              decodeAck,
	} {
		c.decoders[classType] = decode
	}
	return c
}

// RegisterType adds a decoder for classType
func (c *CodecImpl) RegisterType(classType string, decode DecodeFunc) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.decoders[classType]; ok {
		return fmt.Errorf("class type %q already registered", classType)
	}
	c.decoders[classType] = decode
	return nil
}

// Marshal serializes msg to its JSON document
func (c *CodecImpl) Marshal(msg Message) ([]byte, error) {
	var doc any
	switch m := msg.(type) {
	case *SignedMessage[Proof]:
		body := m.Body()
		doc = newWireProofMessage(m, body.ProofFields, body.MessageHash)
	case *SignedMessage[DirectTransfer]:
		body := m.Body()
		w := newWireProofMessage(m, body.ProofFields, common.Hash{})
		w.MsgID = newQuantity(body.MsgID)
		w.To = body.To[:]
		doc = w
	case *SignedMessage[LockedTransfer]:
		body := m.Body()
		w := newWireProofMessage(m, body.ProofFields, common.Hash{})
		w.MsgID = newQuantity(body.MsgID)
		w.To = body.To[:]
		w.Lock = newWireLock(body.Lock)
		doc = w
	case *SignedMessage[MediatedTransfer]:
		body := m.Body()
		w := newWireProofMessage(m, body.ProofFields, common.Hash{})
		w.MsgID = newQuantity(body.MsgID)
		w.To = body.To[:]
		w.Lock = newWireLock(body.Lock)
		w.Target = body.Target[:]
		w.Initiator = body.Initiator[:]
		doc = w
	case *SignedMessage[SecretToProof]:
		body := m.Body()
		w := newWireProofMessage(m, body.ProofFields, common.Hash{})
		w.MsgID = newQuantity(body.MsgID)
		w.To = body.To[:]
		w.Secret = body.Secret[:]
		doc = w
	case *SignedMessage[RequestSecret]:
		body := m.Body()
		doc = &wireRequestSecret{
			ClassType: ClassRequestSecret,
			Signature: newWireSignature(m),
			MsgID:     quantity(body.MsgID),
			To:        body.To[:],
			HashLock:  body.HashLock[:],
			Amount:    quantity(body.Amount),
		}
	case *SignedMessage[RevealSecret]:
		body := m.Body()
		doc = &wireRevealSecret{
			ClassType: ClassRevealSecret,
			Signature: newWireSignature(m),
			MsgID:     quantity(body.MsgID),
			Secret:    body.Secret[:],
			To:        body.To[:],
		}
	case Lock:
		w := newWireLock(m)
		w.ClassType = ClassLock
		doc = w
	case OpenLock:
		w := newWireLock(m.Lock)
		w.ClassType = ClassOpenLock
		w.Secret = m.Secret[:]
		doc = w
	case Ack:
		doc = &wireAck{
			ClassType:   ClassAck,
			To:          m.To[:],
			MessageHash: m.MessageHash[:],
			MsgID:       quantity(m.MsgID),
		}
	default:
		return nil, fmt.Errorf("%w: cannot serialize %T", ErrUnrecognizedMessageType, msg)
	}
	return json.Marshal(doc)
}

// Unmarshal decodes a JSON document into the message variant named by its
// classType.
func (c *CodecImpl) Unmarshal(data []byte) (Message, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: message size %d exceeds maximum %d", ErrMalformedMessage, len(data), MaxMessageSize)
	}
	var head struct {
		ClassType *string `json:"classType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if head.ClassType == nil {
		return nil, fmt.Errorf("%w: missing classType", ErrUnrecognizedMessageType)
	}

	c.lock.RLock()
	decode, ok := c.decoders[*head.ClassType]
	c.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedMessageType, *head.ClassType)
	}
	return decode(data)
}

// Serialize encodes msg with the default codec
func Serialize(msg Message) ([]byte, error) {
	return Codec.Marshal(msg)
}

// Deserialize decodes a message with the default codec
func Deserialize(data []byte) (Message, error) {
	return Codec.Unmarshal(data)
}

// DeserializeSigned decodes a message that must carry a signature envelope
func DeserializeSigned(data []byte) (Signed, error) {
	msg, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	signed, ok := msg.(Signed)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a signed message", ErrUnrecognizedMessageType, msg.ClassType())
	}
	return signed, nil
}

func unmarshalWire(data []byte, w any) error {
	if err := json.Unmarshal(data, w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return nil
}

func decodeProof(data []byte) (Message, error) {
	var w wireProofMessage
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var r fieldReader
	body := Proof{
		ProofFields: r.proofFields(&w),
		MessageHash: r.hash("messageHash", w.MessageHash),
	}
	sig := r.signature(w.Signature)
	if r.err != nil {
		return nil, r.err
	}
	return newSignedMessageWithSignature(body, sig), nil
}

func decodeProofMessage(data []byte) (Message, error) {
	var w wireProofMessage
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var (
		r      fieldReader
		fields = r.proofFields(&w)
		msgID  = optionalQuantity(w.MsgID)
		to     = r.address("to", w.To)
		sig    = r.signature(w.Signature)
		msg    Message
	)
	switch w.ClassType {
	case ClassDirectTransfer:
		msg = newSignedMessageWithSignature(DirectTransfer{
			ProofFields: fields,
			MsgID:       msgID,
			To:          to,
		}, sig)
	case ClassLockedTransfer:
		msg = newSignedMessageWithSignature(LockedTransfer{
			ProofFields: fields,
			MsgID:       msgID,
			To:          to,
			Lock:        r.lock(w.Lock),
		}, sig)
	case ClassMediatedTransfer:
		msg = newSignedMessageWithSignature(MediatedTransfer{
			ProofFields: fields,
			MsgID:       msgID,
			To:          to,
			Lock:        r.lock(w.Lock),
			Target:      r.address("target", w.Target),
			Initiator:   r.address("initiator", w.Initiator),
		}, sig)
	case ClassSecretToProof:
		msg = newSignedMessageWithSignature(SecretToProof{
			ProofFields: fields,
			MsgID:       msgID,
			To:          to,
			Secret:      r.hash("secret", w.Secret),
		}, sig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedMessageType, w.ClassType)
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

func decodeLock(data []byte) (Message, error) {
	var w wireLock
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var r fieldReader
	lock := r.lock(&w)
	if w.ClassType == ClassOpenLock {
		open := OpenLock{
			Lock:   lock,
			Secret: r.hash("secret", w.Secret),
		}
		if r.err != nil {
			return nil, r.err
		}
		return open, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return lock, nil
}

func decodeRequestSecret(data []byte) (Message, error) {
	var w wireRequestSecret
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var r fieldReader
	body := RequestSecret{
		MsgID:    w.MsgID.value(),
		To:       r.address("to", w.To),
		HashLock: r.hash("hashLock", w.HashLock),
		Amount:   w.Amount.value(),
	}
	sig := r.signature(w.Signature)
	if r.err != nil {
		return nil, r.err
	}
	return newSignedMessageWithSignature(body, sig), nil
}

func decodeRevealSecret(data []byte) (Message, error) {
	var w wireRevealSecret
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var r fieldReader
	body := RevealSecret{
		MsgID:  w.MsgID.value(),
		Secret: r.hash("secret", w.Secret),
		To:     r.address("to", w.To),
	}
	sig := r.signature(w.Signature)
	if r.err != nil {
		return nil, r.err
	}
	return newSignedMessageWithSignature(body, sig), nil
}

func decodeAck(data []byte) (Message, error) {
	var w wireAck
	if err := unmarshalWire(data, &w); err != nil {
		return nil, err
	}
	var r fieldReader
	ack := Ack{
		To:          r.address("to", w.To),
		MessageHash: r.hash("messageHash", w.MessageHash),
		MsgID:       w.MsgID.value(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return ack, nil
}

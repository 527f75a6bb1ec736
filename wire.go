// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
)

const bufferType = "Buffer"

// quantity is an unsigned integer rendered as 0x-prefixed lowercase hex
// without leading zeros.
type quantity uint256.Int

func newQuantity(v uint256.Int) *quantity {
	q := quantity(v)
	return &q
}

func (q quantity) value() uint256.Int {
	return uint256.Int(q)
}

func (q quantity) MarshalJSON() ([]byte, error) {
	v := uint256.Int(q)
	return json.Marshal(v.Hex())
}

// UnmarshalJSON accepts hex strings, decimal strings and JSON numbers
func (q *quantity) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := parseQuantity(s)
	if err != nil {
		return err
	}
	*q = quantity(*v)
	return nil
}

func parseQuantity(s string) (*uint256.Int, error) {
	var (
		b  = new(big.Int)
		ok bool
	)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		digits := s[2:]
		if digits == "" {
			return new(uint256.Int), nil
		}
		_, ok = b.SetString(digits, 16)
	default:
		_, ok = b.SetString(s, 10)
	}
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("quantity %q exceeds 256 bits", s)
	}
	return v, nil
}

// buffer is a byte sequence in length-tagged form:
// {"type":"Buffer","data":[...]}. Hex strings are accepted on decode.
type buffer []byte

type taggedBuffer struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func (b buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(taggedBuffer{Type: bufferType, Data: data})
}

func (b *buffer) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*b = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var hex string
		if err := json.Unmarshal(data, &hex); err != nil {
			return err
		}
		raw, err := hexutil.Decode(hex)
		if err != nil {
			return err
		}
		*b = raw
		return nil
	}
	var tagged taggedBuffer
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if tagged.Type != bufferType {
		return fmt.Errorf("unexpected buffer type %q", tagged.Type)
	}
	raw := make([]byte, len(tagged.Data))
	for i, v := range tagged.Data {
		if v < 0 || v > 0xff {
			return fmt.Errorf("buffer byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	*b = raw
	return nil
}

type wireSignature struct {
	R buffer `json:"r"`
	S buffer `json:"s"`
	V uint8  `json:"v"`
}

func newWireSignature(msg Signed) *wireSignature {
	sig, ok := msg.Signature()
	if !ok {
		return nil
	}
	return &wireSignature{
		R: sig.R[:],
		S: sig.S[:],
		V: sig.V,
	}
}

type wireLock struct {
	ClassType  string   `json:"classType,omitempty"`
	Amount     quantity `json:"amount"`
	Expiration quantity `json:"expiration"`
	HashLock   buffer   `json:"hashLock"`
	Secret     buffer   `json:"secret,omitempty"`
}

func newWireLock(l Lock) *wireLock {
	return &wireLock{
		Amount:     quantity(l.Amount),
		Expiration: quantity(l.Expiration),
		HashLock:   l.HashLock[:],
	}
}

// wireProofMessage covers Proof and every proof carrying variant. Field
// order follows the class hierarchy so encodings stay byte compatible.
type wireProofMessage struct {
	ClassType         string         `json:"classType"`
	Signature         *wireSignature `json:"signature"`
	Nonce             quantity       `json:"nonce"`
	TransferredAmount quantity       `json:"transferredAmount"`
	LocksRoot         buffer         `json:"locksRoot"`
	ChannelAddress    buffer         `json:"channelAddress"`
	MessageHash       buffer         `json:"messageHash"`
	MsgID             *quantity      `json:"msgID,omitempty"`
	To                buffer         `json:"to,omitempty"`
	Lock              *wireLock      `json:"lock,omitempty"`
	Target            buffer         `json:"target,omitempty"`
	Initiator         buffer         `json:"initiator,omitempty"`
	Secret            buffer         `json:"secret,omitempty"`
}

func newWireProofMessage(msg Signed, p ProofFields, messageHash common.Hash) *wireProofMessage {
	return &wireProofMessage{
		ClassType:         msg.ClassType(),
		Signature:         newWireSignature(msg),
		Nonce:             quantity(p.Nonce),
		TransferredAmount: quantity(p.TransferredAmount),
		LocksRoot:         p.LocksRoot[:],
		ChannelAddress:    p.ChannelAddress[:],
		MessageHash:       messageHash[:],
	}
}

type wireRequestSecret struct {
	ClassType string         `json:"classType"`
	Signature *wireSignature `json:"signature"`
	MsgID     quantity       `json:"msgID"`
	To        buffer         `json:"to"`
	HashLock  buffer         `json:"hashLock"`
	Amount    quantity       `json:"amount"`
}

type wireRevealSecret struct {
	ClassType string         `json:"classType"`
	Signature *wireSignature `json:"signature"`
	MsgID     quantity       `json:"msgID"`
	Secret    buffer         `json:"secret"`
	To        buffer         `json:"to"`
}

type wireAck struct {
	ClassType   string   `json:"classType"`
	To          buffer   `json:"to"`
	MessageHash buffer   `json:"messageHash"`
	MsgID       quantity `json:"msgID"`
}

// fieldReader converts wire fields to fixed width values, keeping the first
// error encountered.
type fieldReader struct {
	err error
}

func (r *fieldReader) fail(field string, want, got int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s must be %d bytes but got %d", ErrMalformedMessage, field, want, got)
	}
}

// hash returns the 32 byte value of b. An absent field is the zero hash.
func (r *fieldReader) hash(field string, b buffer) common.Hash {
	switch len(b) {
	case 0:
		return common.Hash{}
	case common.HashLength:
		return common.BytesToHash(b)
	default:
		r.fail(field, common.HashLength, len(b))
		return common.Hash{}
	}
}

// address returns the 20 byte value of b. An absent field is the zero address.
func (r *fieldReader) address(field string, b buffer) common.Address {
	switch len(b) {
	case 0:
		return common.Address{}
	case common.AddressLength:
		return common.BytesToAddress(b)
	default:
		r.fail(field, common.AddressLength, len(b))
		return common.Address{}
	}
}

func (r *fieldReader) signature(w *wireSignature) *Signature {
	if w == nil {
		return nil
	}
	if len(w.R) != 32 {
		r.fail("signature.r", 32, len(w.R))
		return nil
	}
	if len(w.S) != 32 {
		r.fail("signature.s", 32, len(w.S))
		return nil
	}
	if w.V != recoveryOffset && w.V != recoveryOffset+1 {
		if r.err == nil {
			r.err = fmt.Errorf("%w: signature.v must be 27 or 28 but got %d", ErrMalformedMessage, w.V)
		}
		return nil
	}
	sig := &Signature{V: w.V}
	copy(sig.R[:], w.R)
	copy(sig.S[:], w.S)
	return sig
}

func (r *fieldReader) lock(w *wireLock) Lock {
	if w == nil {
		return Lock{}
	}
	return Lock{
		Amount:     w.Amount.value(),
		Expiration: w.Expiration.value(),
		HashLock:   r.hash("lock.hashLock", w.HashLock),
	}
}

func (r *fieldReader) proofFields(w *wireProofMessage) ProofFields {
	return ProofFields{
		Nonce:             w.Nonce.value(),
		TransferredAmount: w.TransferredAmount.value(),
		ChannelAddress:    r.address("channelAddress", w.ChannelAddress),
		LocksRoot:         r.hash("locksRoot", w.LocksRoot),
	}
}

func optionalQuantity(q *quantity) uint256.Int {
	if q == nil {
		return uint256.Int{}
	}
	return q.value()
}

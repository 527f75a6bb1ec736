// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pack implements the tight (non-padded) fixed-width encoding used
// by on-chain keccak-256 verification: uint256 values as 32-byte big-endian
// words, addresses as 20 bytes and bytes32 values as their raw 32 bytes.
package pack

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

const (
	// Uint256Len is the packed width of a uint256
	Uint256Len = 32

	// AddressLen is the packed width of an address
	AddressLen = common.AddressLength

	// Bytes32Len is the packed width of a bytes32
	Bytes32Len = common.HashLength
)

// Packer accumulates tightly packed values in call order.
type Packer struct {
	buf []byte
}

// New returns a Packer with room for size bytes.
func New(size int) *Packer {
	return &Packer{buf: make([]byte, 0, size)}
}

// Uint256 appends v as a 32-byte big-endian word. A nil v packs as zero.
func (p *Packer) Uint256(v *uint256.Int) *Packer {
	if v == nil {
		v = new(uint256.Int)
	}
	word := v.Bytes32()
	p.buf = append(p.buf, word[:]...)
	return p
}

// Address appends the 20 address bytes.
func (p *Packer) Address(a common.Address) *Packer {
	p.buf = append(p.buf, a[:]...)
	return p
}

// Bytes32 appends the raw 32 bytes of h.
func (p *Packer) Bytes32(h common.Hash) *Packer {
	p.buf = append(p.buf, h[:]...)
	return p
}

// Len returns the number of bytes packed so far.
func (p *Packer) Len() int {
	return len(p.buf)
}

// Bytes returns a copy of the packed bytes.
func (p *Packer) Bytes() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// Keccak256 returns the keccak-256 digest of the packed bytes.
func (p *Packer) Keccak256() common.Hash {
	return common.Hash(crypto.Keccak256Hash(p.buf))
}

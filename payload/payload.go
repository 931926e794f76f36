// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package payload implements the fixed-layout report frame a node sends to the coordinator.
//
// All multi-byte integers are big-endian. The frame carries no length prefix and no
// variant tag: both sides are configured with the same Variant.
package payload

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/logger"
	. "github.com/openthread/ot-sink/types"
)

type Variant uint8

const (
	VariantBasic    Variant = 0
	VariantParent   Variant = 1
	VariantExtended Variant = 2
)

// Frame lengths per variant. Each variant is a prefix of the next one.
const (
	basicLen    = 13
	parentLen   = basicLen + 16
	extendedLen = parentLen + 6
)

// Field offsets.
const (
	offNodeId        = 0
	offTxSequence    = 1
	offSendTimestamp = 3
	offTemperature   = 11
	offParentAddress = 13
	offPongReceived  = 29
	offPingSent      = 31
	offLastRttMs     = 33
)

// Len returns the encoded frame length of the variant.
func (v Variant) Len() int {
	switch v {
	case VariantBasic:
		return basicLen
	case VariantParent:
		return parentLen
	case VariantExtended:
		return extendedLen
	default:
		logger.Panicf("invalid payload variant: %d", v)
		return 0
	}
}

func (v Variant) String() string {
	switch v {
	case VariantBasic:
		return "basic"
	case VariantParent:
		return "parent"
	case VariantExtended:
		return "extended"
	default:
		return fmt.Sprintf("variant(%d)", v)
	}
}

func (v Variant) hasParent() bool {
	return v >= VariantParent
}

func (v Variant) hasLiveness() bool {
	return v >= VariantExtended
}

// ParseVariant parses a variant name as used in configuration files.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "basic":
		return VariantBasic, nil
	case "parent", "":
		return VariantParent, nil
	case "extended":
		return VariantExtended, nil
	default:
		return VariantBasic, errors.Errorf("unknown payload variant: %s", s)
	}
}

// Frame is one sensor report.
type Frame struct {
	NodeId        NodeId
	TxSequence    uint16
	SendTimestamp Ticks
	Temperature   int16

	// ParentAddress is the unspecified address when the node has no parent or the variant does not carry it.
	// The wire field is a raw IPv6 address: a zero Addr is sent as :: and an IPv4 address comes back as
	// its IPv4-mapped form, so only IPv6 parents survive a round trip unchanged.
	ParentAddress netip.Addr

	// Liveness counters, only carried by VariantExtended.
	PongReceivedCount uint16
	PingSentCount     uint16
	LastRttMs         uint16
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{nid=%d,seq=%d,ts=%d,temp=%d,parent=%s,pong=%d,ping=%d,rtt=%d}", f.NodeId,
		f.TxSequence, f.SendTimestamp, f.Temperature, f.ParentAddress, f.PongReceivedCount, f.PingSentCount,
		f.LastRttMs)
}

// HasParent returns whether the frame names a parent, i.e. the node is not attached to the root directly.
func (f *Frame) HasParent() bool {
	return f.ParentAddress.IsValid() && !f.ParentAddress.IsUnspecified()
}

// Codec encodes and decodes frames of a single variant for a node domain.
type Codec struct {
	variant Variant
	domain  NodeDomain
}

func NewCodec(variant Variant, domain NodeDomain) *Codec {
	logger.AssertTrue(variant <= VariantExtended, "invalid payload variant %d", variant)
	return &Codec{
		variant: variant,
		domain:  domain,
	}
}

func (c *Codec) Variant() Variant {
	return c.variant
}

func (c *Codec) Domain() NodeDomain {
	return c.domain
}

// Encode serializes f into a new buffer of exactly c.Variant().Len() bytes.
// Fields the variant does not carry are dropped.
func (c *Codec) Encode(f *Frame) []byte {
	msg := make([]byte, c.variant.Len())
	msg[offNodeId] = byte(f.NodeId)
	binary.BigEndian.PutUint16(msg[offTxSequence:offSendTimestamp], f.TxSequence)
	binary.BigEndian.PutUint64(msg[offSendTimestamp:offTemperature], uint64(f.SendTimestamp))
	binary.BigEndian.PutUint16(msg[offTemperature:offParentAddress], uint16(f.Temperature))

	if c.variant.hasParent() && f.ParentAddress.IsValid() {
		addr := f.ParentAddress.As16()
		copy(msg[offParentAddress:offPongReceived], addr[:])
	}

	if c.variant.hasLiveness() {
		binary.BigEndian.PutUint16(msg[offPongReceived:offPingSent], f.PongReceivedCount)
		binary.BigEndian.PutUint16(msg[offPingSent:offLastRttMs], f.PingSentCount)
		binary.BigEndian.PutUint16(msg[offLastRttMs:extendedLen], f.LastRttMs)
	}
	return msg
}

// Decode parses a frame. Data longer than the variant length is accepted and the excess ignored.
// It fails with ErrDecodeTooShort or ErrInvalidNodeId, and never returns a partial frame.
func (c *Codec) Decode(data []byte) (*Frame, error) {
	n := c.variant.Len()
	if len(data) < n {
		return nil, errors.Wrapf(ErrDecodeTooShort, "%d bytes, %s frame needs %d", len(data), c.variant, n)
	}

	id := NodeId(data[offNodeId])
	if !c.domain.Contains(id) {
		return nil, errors.Wrapf(ErrInvalidNodeId, "node %d", id)
	}

	f := &Frame{
		NodeId:        id,
		TxSequence:    binary.BigEndian.Uint16(data[offTxSequence:offSendTimestamp]),
		SendTimestamp: Ticks(binary.BigEndian.Uint64(data[offSendTimestamp:offTemperature])),
		Temperature:   int16(binary.BigEndian.Uint16(data[offTemperature:offParentAddress])),
		ParentAddress: netip.IPv6Unspecified(),
	}

	if c.variant.hasParent() {
		var addr [16]byte
		copy(addr[:], data[offParentAddress:offPongReceived])
		f.ParentAddress = netip.AddrFrom16(addr)
	}

	if c.variant.hasLiveness() {
		f.PongReceivedCount = binary.BigEndian.Uint16(data[offPongReceived:offPingSent])
		f.PingSentCount = binary.BigEndian.Uint16(data[offPingSent:offLastRttMs])
		f.LastRttMs = binary.BigEndian.Uint16(data[offLastRttMs:extendedLen])
	}
	return f, nil
}

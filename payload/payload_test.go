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

package payload

import (
	"encoding/hex"
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/openthread/ot-sink/types"
)

var testDomain = NewNodeDomain(DefaultNodeIds)

func TestEncodeBasic(t *testing.T) {
	c := NewCodec(VariantBasic, testDomain)
	f := &Frame{NodeId: 4, TxSequence: 0x0102, SendTimestamp: 0x1234, Temperature: 25,
		ParentAddress: netip.MustParseAddr("fd00::1")}
	data := c.Encode(f)
	assert.Equal(t, "04"+"0102"+"0000000000001234"+"0019", hex.EncodeToString(data))
}

func TestDecodeBasic(t *testing.T) {
	data, _ := hex.DecodeString("0f" + "ffff" + "0000000100000002" + "fffb")
	c := NewCodec(VariantBasic, testDomain)
	f, err := c.Decode(data)
	assert.Nil(t, err)
	assert.Equal(t, NodeId(15), f.NodeId)
	assert.Equal(t, uint16(65535), f.TxSequence)
	assert.Equal(t, Ticks(0x100000002), f.SendTimestamp)
	assert.Equal(t, int16(-5), f.Temperature)
	assert.True(t, f.ParentAddress.IsUnspecified())
	assert.False(t, f.HasParent())
}

func TestRoundTrip(t *testing.T) {
	parent := netip.MustParseAddr("fe80::212:4b00:1:2")
	for _, variant := range []Variant{VariantBasic, VariantParent, VariantExtended} {
		c := NewCodec(variant, testDomain)
		f := &Frame{NodeId: 171, TxSequence: 77, SendTimestamp: 987654321, Temperature: 29,
			ParentAddress: netip.IPv6Unspecified()}
		if variant >= VariantParent {
			f.ParentAddress = parent
		}
		if variant == VariantExtended {
			f.PongReceivedCount = 3
			f.PingSentCount = 4
			f.LastRttMs = 50
		}

		data := c.Encode(f)
		assert.Equal(t, variant.Len(), len(data))
		f2, err := c.Decode(data)
		assert.Nil(t, err)
		assert.Equal(t, f, f2, variant.String())
	}
}

func TestParentLayout(t *testing.T) {
	c := NewCodec(VariantParent, testDomain)
	f := &Frame{NodeId: 88, TxSequence: 1, ParentAddress: netip.MustParseAddr("fd00::abcd")}
	data := c.Encode(f)
	assert.Equal(t, 29, len(data))
	assert.Equal(t, "fd00000000000000000000000000abcd", hex.EncodeToString(data[13:29]))

	f.ParentAddress = netip.Addr{}
	data = c.Encode(f)
	f2, err := c.Decode(data)
	assert.Nil(t, err)
	assert.True(t, f2.ParentAddress.IsUnspecified())
}

func TestParentAddressRoundTrip(t *testing.T) {
	c := NewCodec(VariantParent, testDomain)
	decode := func(parent netip.Addr) netip.Addr {
		f, err := c.Decode(c.Encode(&Frame{NodeId: 88, ParentAddress: parent}))
		assert.Nil(t, err)
		return f.ParentAddress
	}

	ll := netip.MustParseAddr("fe80::212:4b00:1:2")
	assert.Equal(t, ll, decode(ll))
	assert.Equal(t, netip.IPv6Unspecified(), decode(netip.Addr{}))

	v4 := netip.MustParseAddr("10.0.0.4")
	mapped := decode(v4)
	assert.True(t, mapped.Is4In6())
	assert.Equal(t, v4, mapped.Unmap())
}

func TestExtendedLayout(t *testing.T) {
	c := NewCodec(VariantExtended, testDomain)
	data := c.Encode(&Frame{NodeId: 4, PongReceivedCount: 0x0102, PingSentCount: 0x0304, LastRttMs: 0x0506})
	assert.Equal(t, 35, len(data))
	assert.Equal(t, "010203040506", hex.EncodeToString(data[29:]))
}

func TestDecodeTooShort(t *testing.T) {
	for _, variant := range []Variant{VariantBasic, VariantParent, VariantExtended} {
		c := NewCodec(variant, testDomain)
		full := c.Encode(&Frame{NodeId: 4})
		for n := 0; n < len(full); n++ {
			f, err := c.Decode(full[:n])
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, ErrDecodeTooShort), "variant %s len %d", variant, n)
		}
	}
}

func TestDecodeLonger(t *testing.T) {
	ext := NewCodec(VariantExtended, testDomain)
	basic := NewCodec(VariantBasic, testDomain)
	data := ext.Encode(&Frame{NodeId: 15, TxSequence: 9, Temperature: 21, PingSentCount: 2})
	f, err := basic.Decode(data)
	assert.Nil(t, err)
	assert.Equal(t, uint16(9), f.TxSequence)
	assert.Equal(t, int16(21), f.Temperature)
	assert.Equal(t, uint16(0), f.PingSentCount)
}

func TestDecodeInvalidNodeId(t *testing.T) {
	c := NewCodec(VariantBasic, testDomain)
	data := c.Encode(&Frame{NodeId: 5, TxSequence: 1})
	f, err := c.Decode(data)
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, ErrInvalidNodeId))

	data[0] = 0
	_, err = c.Decode(data)
	assert.True(t, errors.Is(err, ErrInvalidNodeId))

	rangeCodec := NewCodec(VariantBasic, NewNodeDomain(nil))
	data[0] = 5
	_, err = rangeCodec.Decode(data)
	assert.Nil(t, err)
	data[0] = 16
	_, err = rangeCodec.Decode(data)
	assert.True(t, errors.Is(err, ErrInvalidNodeId))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("Extended")
	assert.Nil(t, err)
	assert.Equal(t, VariantExtended, v)
	v, err = ParseVariant("")
	assert.Nil(t, err)
	assert.Equal(t, VariantParent, v)
	_, err = ParseVariant("tagged")
	assert.NotNil(t, err)
}

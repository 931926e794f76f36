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

package pcap

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

func testDatagram(i int) *transport.Datagram {
	return &transport.Datagram{
		Src:      netip.MustParseAddrPort("[fd00::4]:1234"),
		Dst:      netip.MustParseAddrPort("[fd00::1]:1234"),
		Payload:  []byte{0x04, 0x00, byte(i), 0x12, 0x10},
		HopLimit: 63,
	}
}

func openReader(t *testing.T, fn string) *pcapgo.Reader {
	fd, err := os.Open(fn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = fd.Close()
	})
	r, err := pcapgo.NewReader(fd)
	require.NoError(t, err)
	return r
}

func TestPcapFileIpv6(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "test.pcap")
	clock := uptime.NewManual(1000)
	pf, err := NewFile(fn, FrameTypeIpv6, clock)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		clock.Set(Ticks(i * 1500))
		require.NoError(t, pf.WritePacket(testDatagram(i)))
	}
	require.NoError(t, pf.Sync())
	assert.Equal(t, 10, pf.Count())
	require.NoError(t, pf.Close())

	r := openReader(t, fn)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())
	for i := 0; i < 10; i++ {
		data, ci, err := r.ReadPacketData()
		require.NoError(t, err)
		assert.Equal(t, int64(i*1500), ci.Timestamp.UnixMilli())

		pkt := gopacket.NewPacket(data, layers.LayerTypeIPv6, gopacket.Default)
		ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		require.True(t, ok)
		assert.Equal(t, uint8(63), ip6.HopLimit)
		assert.Equal(t, "fd00::4", ip6.SrcIP.String())

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		require.True(t, ok)
		assert.Equal(t, layers.UDPPort(1234), udp.DstPort)
		assert.Equal(t, testDatagram(i).Payload, []byte(udp.Payload))
	}
}

func TestPcapFilePayload(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "payload.pcap")
	pf, err := NewFile(fn, FrameTypePayload, nil)
	require.NoError(t, err)
	require.NoError(t, pf.WritePacket(testDatagram(1)))
	require.NoError(t, pf.Close())

	r := openReader(t, fn)
	assert.Equal(t, layers.LinkType(147), r.LinkType())
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, testDatagram(1).Payload, data)
}

func TestParseFrameTypeStr(t *testing.T) {
	assert.Equal(t, FrameTypeOff, ParseFrameTypeStr("off"))
	assert.Equal(t, FrameTypeIpv6, ParseFrameTypeStr("ipv6"))
	assert.Equal(t, FrameTypePayload, ParseFrameTypeStr("payload"))
	assert.Equal(t, FrameTypeUnknown, ParseFrameTypeStr("wpan"))

	_, err := NewFile(filepath.Join(t.TempDir(), "x.pcap"), FrameTypeOff, nil)
	assert.Error(t, err)
}

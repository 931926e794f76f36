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
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/transport"
	"github.com/openthread/ot-sink/uptime"
)

type FrameType int

const (
	FrameTypeOff FrameType = iota
	FrameTypeIpv6
	FrameTypePayload
	FrameTypeUnknown
)

const (
	FrameTypeOffStr     string = "off"
	FrameTypeIpv6Str    string = "ipv6"
	FrameTypePayloadStr string = "payload"
)

const (
	snapLen = 65535

	// DLT_USER0, frames hold the bare UDP payload.
	linkTypeUser0 layers.LinkType = 147

	defaultHopLimit = 64
)

// File captures datagrams to a PCAP file.
type File struct {
	mutex     sync.Mutex
	fd        *os.File
	w         *pcapgo.Writer
	frameType FrameType
	clock     uptime.Clock
	count     int
}

// NewFile creates a PCAP file. With FrameTypeIpv6 every datagram is written as an IPv6/UDP packet;
// with FrameTypePayload only the UDP payload is kept. If clock is not nil, timestamps are uptime
// relative to t=0 instead of wall-clock time.
func NewFile(filename string, frameType FrameType, clock uptime.Clock) (*File, error) {
	var linkType layers.LinkType
	switch frameType {
	case FrameTypeIpv6:
		linkType = layers.LinkTypeRaw
	case FrameTypePayload:
		linkType = linkTypeUser0
	default:
		return nil, errors.Errorf("invalid PCAP frame type: %d", frameType)
	}

	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	pf := &File{
		fd:        fd,
		w:         pcapgo.NewWriter(fd),
		frameType: frameType,
		clock:     clock,
	}
	if err = pf.w.WriteFileHeader(snapLen, linkType); err != nil {
		_ = fd.Close()
		return nil, errors.Wrapf(err, "write PCAP header to %s", filename)
	}
	return pf, nil
}

func ParseFrameTypeStr(tp string) FrameType {
	switch tp {
	case FrameTypeOffStr, "":
		return FrameTypeOff
	case FrameTypeIpv6Str:
		return FrameTypeIpv6
	case FrameTypePayloadStr:
		return FrameTypePayload
	default:
		return FrameTypeUnknown
	}
}

// WritePacket appends one datagram.
func (pf *File) WritePacket(dg *transport.Datagram) error {
	data := dg.Payload
	if pf.frameType == FrameTypeIpv6 {
		var err error
		if data, err = serializeIpv6(dg); err != nil {
			return err
		}
	}

	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     pf.timestamp(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := pf.w.WritePacket(ci, data); err != nil {
		return err
	}
	pf.count++
	return nil
}

func (pf *File) timestamp() time.Time {
	if pf.clock == nil {
		return time.Now()
	}
	ms := uptime.TicksToMs(pf.clock.Now(), pf.clock.TicksPerSecond())
	return time.UnixMilli(int64(ms)).UTC()
}

// Count returns the number of packets written.
func (pf *File) Count() int {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()
	return pf.count
}

func (pf *File) Sync() error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()
	return pf.fd.Sync()
}

func (pf *File) Close() error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()
	return pf.fd.Close()
}

func serializeIpv6(dg *transport.Datagram) ([]byte, error) {
	hopLimit := uint8(defaultHopLimit)
	if dg.HopLimit >= 0 && dg.HopLimit <= 255 {
		hopLimit = uint8(dg.HopLimit)
	}
	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   hopLimit,
		SrcIP:      ipv6Bytes(dg.Src.Addr()),
		DstIP:      ipv6Bytes(dg.Dst.Addr()),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(dg.Src.Port()),
		DstPort: layers.UDPPort(dg.Dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip6); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip6, udp, gopacket.Payload(dg.Payload)); err != nil {
		return nil, errors.Wrap(err, "serialize IPv6/UDP")
	}
	return buf.Bytes(), nil
}

func ipv6Bytes(addr netip.Addr) []byte {
	if !addr.IsValid() {
		addr = netip.IPv6Unspecified()
	}
	b := addr.As16()
	return b[:]
}

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

// Package transport carries unreliable datagrams between the nodes and the coordinator.
package transport

import (
	"context"
	"fmt"
	"net/netip"

	. "github.com/openthread/ot-sink/types"
)

// MaxDatagramSize bounds the datagrams read from a connection.
const MaxDatagramSize = 1280

// Datagram is one received datagram with its link metadata.
type Datagram struct {
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Payload []byte

	// Rssi is RssiInvalid when the transport has no radio side channel.
	Rssi Rssi

	// HopLimit is the IPv6 hop limit seen on reception, or -1 if unknown.
	HopLimit int
}

func (d *Datagram) String() string {
	return fmt.Sprintf("Datagram{src=%s,dst=%s,len=%d,rssi=%d,hlim=%d}", d.Src, d.Dst, len(d.Payload), d.Rssi,
		d.HopLimit)
}

// Conn is a datagram endpoint. Delivery is best effort: a successful Send does not mean the
// datagram arrived.
type Conn interface {
	// Receive blocks until a datagram arrives, ctx is done or the Conn is closed.
	Receive(ctx context.Context) (Datagram, error)
	Send(dst netip.AddrPort, payload []byte) error
	LocalAddr() netip.AddrPort
	Close() error
}

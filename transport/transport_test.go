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

package transport

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/openthread/ot-sink/types"
)

type fixedLink struct {
	rssi     Rssi
	pSuccess float64
}

func (l fixedLink) Link(src, dst netip.Addr, payloadLen int) (Rssi, float64) {
	return l.rssi, l.pSuccess
}

var (
	coordAddr = netip.MustParseAddrPort("[fd00::1]:1234")
	nodeAddr  = netip.MustParseAddrPort("[fd00::4]:1234")
)

func TestMeshDelivers(t *testing.T) {
	m := NewMesh(fixedLink{rssi: -60, pSuccess: 1}, 1)
	coord, err := m.Attach(coordAddr)
	assert.Nil(t, err)
	node, err := m.Attach(nodeAddr)
	assert.Nil(t, err)

	payload := []byte("PING")
	assert.Nil(t, node.Send(coordAddr, payload))
	payload[0] = 'X'

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dg, err := coord.Receive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, nodeAddr, dg.Src)
	assert.Equal(t, coordAddr, dg.Dst)
	assert.Equal(t, []byte("PING"), dg.Payload)
	assert.Equal(t, Rssi(-60), dg.Rssi)
	assert.Equal(t, uint64(1), m.Counters().Delivered)
}

func TestMeshAttachTwice(t *testing.T) {
	m := NewMesh(nil, 1)
	c, err := m.Attach(coordAddr)
	assert.Nil(t, err)
	_, err = m.Attach(coordAddr)
	assert.NotNil(t, err)

	assert.Nil(t, c.Close())
	_, err = m.Attach(coordAddr)
	assert.Nil(t, err)
}

func TestMeshLoss(t *testing.T) {
	m := NewMesh(fixedLink{rssi: -90, pSuccess: 0}, 1)
	coord, _ := m.Attach(coordAddr)
	node, _ := m.Attach(nodeAddr)
	for i := 0; i < 10; i++ {
		assert.Nil(t, node.Send(coordAddr, []byte{1}))
	}
	assert.Equal(t, uint64(10), m.Counters().LostLink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coord.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMeshPlr(t *testing.T) {
	m := NewMesh(nil, 7)
	assert.NotNil(t, m.SetPlr(1.5))
	assert.Nil(t, m.SetPlr(0.5))
	assert.Equal(t, 0.5, m.Plr())

	coord, _ := m.Attach(coordAddr)
	node, _ := m.Attach(nodeAddr)
	for i := 0; i < 50; i++ {
		assert.Nil(t, node.Send(coordAddr, []byte{1}))
	}
	c := m.Counters()
	assert.Equal(t, uint64(50), c.Sent)
	assert.Equal(t, uint64(50), c.Delivered+c.LostPlr)
	assert.True(t, c.LostPlr > 5 && c.LostPlr < 45, "lost=%d", c.LostPlr)
	assert.Equal(t, int(c.Delivered), len(coord.inbox))
}

func TestMeshNoRouteAndClosed(t *testing.T) {
	m := NewMesh(nil, 1)
	node, _ := m.Attach(nodeAddr)
	assert.Nil(t, node.Send(coordAddr, []byte{1}))
	assert.Equal(t, uint64(1), m.Counters().NoRoute)

	assert.Nil(t, node.Close())
	assert.Nil(t, node.Close())
	assert.True(t, errors.Is(node.Send(coordAddr, []byte{1}), net.ErrClosed))
	_, err := node.Receive(context.Background())
	assert.True(t, errors.Is(err, net.ErrClosed))
}

func TestUDPLoopback(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0", 0)
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer a.Close()
	b, err := ListenUDP("127.0.0.1:0", 0)
	assert.Nil(t, err)
	defer b.Close()

	assert.Nil(t, a.Send(b.LocalAddr(), []byte("PONG")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dg, err := b.Receive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []byte("PONG"), dg.Payload)
	assert.Equal(t, a.LocalAddr(), dg.Src)
	assert.Equal(t, RssiInvalid, dg.Rssi)
	assert.Equal(t, -1, dg.HopLimit)
}

func TestUDPReceiveHonorsContext(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0", 0)
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = a.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestUDPIpv6HopLimit(t *testing.T) {
	a, err := ListenUDP("[::1]:0", 7)
	if err != nil {
		t.Skipf("no IPv6 loopback: %v", err)
	}
	defer a.Close()
	b, err := ListenUDP("[::1]:0", 0)
	if err != nil {
		t.Skipf("no IPv6 loopback: %v", err)
	}
	defer b.Close()

	assert.Nil(t, a.Send(b.LocalAddr(), []byte("PING")))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dg, err := b.Receive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []byte("PING"), dg.Payload)
	if dg.HopLimit != -1 {
		assert.Equal(t, 7, dg.HopLimit)
	}
}

func TestListenUDPBadAddress(t *testing.T) {
	_, err := ListenUDP(":1234", 0)
	assert.NotNil(t, err)
}

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
	"sync"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/prng"
	. "github.com/openthread/ot-sink/types"
)

const meshInboxLen = 64

// LinkModel decides how a datagram of payloadLen bytes travels from src to dst.
type LinkModel interface {
	Link(src, dst netip.Addr, payloadLen int) (rssi Rssi, pSuccess float64)
}

// MeshCounters count the fate of datagrams sent over a Mesh.
type MeshCounters struct {
	Sent        uint64
	Delivered   uint64
	LostLink    uint64
	LostPlr     uint64
	NoRoute     uint64
	DroppedFull uint64
}

// Mesh is an in-memory lossy datagram network. Each datagram is lost according to the link model
// and, independently, the global packet loss ratio.
type Mesh struct {
	mutex    sync.Mutex
	conns    map[netip.AddrPort]*MeshConn
	model    LinkModel
	plr      float64
	rnd      *prng.Source
	counters MeshCounters
}

// NewMesh creates a mesh. A nil model delivers every datagram with RssiInvalid.
func NewMesh(model LinkModel, seed prng.RandomSeed) *Mesh {
	return &Mesh{
		conns: map[netip.AddrPort]*MeshConn{},
		model: model,
		rnd:   prng.NewSource(seed),
	}
}

// SetPlr sets the global packet loss ratio in [0, 1].
func (m *Mesh) SetPlr(plr float64) error {
	if plr < 0 || plr > 1 {
		return errors.Errorf("packet loss ratio %v out of range [0, 1]", plr)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.plr = plr
	return nil
}

func (m *Mesh) Plr() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.plr
}

func (m *Mesh) Counters() MeshCounters {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.counters
}

// Attach creates an endpoint bound to addr.
func (m *Mesh) Attach(addr netip.AddrPort) (*MeshConn, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.conns[addr]; ok {
		return nil, errors.Errorf("address %s already attached", addr)
	}
	c := &MeshConn{
		mesh:   m,
		local:  addr,
		inbox:  make(chan Datagram, meshInboxLen),
		closed: make(chan struct{}),
	}
	m.conns[addr] = c
	return c, nil
}

func (m *Mesh) detach(c *MeshConn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conns[c.local] == c {
		delete(m.conns, c.local)
	}
}

func (m *Mesh) send(src netip.AddrPort, dst netip.AddrPort, payload []byte) {
	m.mutex.Lock()
	m.counters.Sent++
	dstConn, ok := m.conns[dst]
	if !ok {
		m.counters.NoRoute++
		m.mutex.Unlock()
		return
	}

	rssi, pSuccess := RssiInvalid, 1.0
	if m.model != nil {
		rssi, pSuccess = m.model.Link(src.Addr(), dst.Addr(), len(payload))
	}
	if pSuccess < 1.0 && m.rnd.Float64() >= pSuccess {
		m.counters.LostLink++
		m.mutex.Unlock()
		return
	}
	if m.plr > 0 && m.rnd.Float64() < m.plr {
		m.counters.LostPlr++
		m.mutex.Unlock()
		return
	}

	dg := Datagram{
		Src:      src,
		Dst:      dst,
		Payload:  append([]byte(nil), payload...),
		Rssi:     rssi,
		HopLimit: -1,
	}
	select {
	case dstConn.inbox <- dg:
		m.counters.Delivered++
	default:
		m.counters.DroppedFull++
	}
	m.mutex.Unlock()
}

// MeshConn is an endpoint attached to a Mesh.
type MeshConn struct {
	mesh      *Mesh
	local     netip.AddrPort
	inbox     chan Datagram
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *MeshConn) LocalAddr() netip.AddrPort {
	return c.local
}

func (c *MeshConn) Send(dst netip.AddrPort, payload []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mesh.send(c.local, dst, payload)
	return nil
}

func (c *MeshConn) Receive(ctx context.Context) (Datagram, error) {
	select {
	case dg := <-c.inbox:
		return dg, nil
	case <-c.closed:
		return Datagram{}, net.ErrClosed
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

func (c *MeshConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mesh.detach(c)
	})
	return nil
}

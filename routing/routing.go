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

// Package routing answers the two questions a node asks the network stack before sending: where is
// the root, and who is my parent.
package routing

import (
	"net/netip"
	"sync"

	. "github.com/openthread/ot-sink/types"
)

// Resolver resolves the addresses a node needs at send time. Either may be unavailable.
type Resolver interface {
	RootAddr() (netip.Addr, bool)
	ParentAddr() (netip.Addr, bool)
}

// Static is a Resolver over fixed addresses that can be changed at run time. An invalid or
// unspecified address means unavailable.
type Static struct {
	mutex  sync.RWMutex
	root   netip.Addr
	parent netip.Addr
}

func NewStatic(root, parent netip.Addr) *Static {
	return &Static{root: root, parent: parent}
}

func (s *Static) RootAddr() (netip.Addr, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.root, usable(s.root)
}

func (s *Static) ParentAddr() (netip.Addr, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.parent, usable(s.parent)
}

func (s *Static) SetRoot(addr netip.Addr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.root = addr
}

func (s *Static) SetParent(addr netip.Addr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.parent = addr
}

func usable(addr netip.Addr) bool {
	return addr.IsValid() && !addr.IsUnspecified()
}

// Topology is a sink tree: every node has a parent node, or none when attached to the root.
type Topology struct {
	mutex   sync.RWMutex
	root    netip.Addr
	addrs   map[NodeId]netip.Addr
	parents map[NodeId]NodeId
}

func NewTopology(root netip.Addr) *Topology {
	return &Topology{
		root:    root,
		addrs:   map[NodeId]netip.Addr{},
		parents: map[NodeId]NodeId{},
	}
}

// AddNode places id at addr. A parent equal to id, or not in the tree, attaches it to the root.
func (t *Topology) AddNode(id NodeId, addr netip.Addr, parent NodeId) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.addrs[id] = addr
	t.parents[id] = parent
}

// SetParent re-attaches id to parent.
func (t *Topology) SetParent(id NodeId, parent NodeId) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.parents[id] = parent
}

// SetRoot changes the root address; an invalid address makes the root unreachable.
func (t *Topology) SetRoot(addr netip.Addr) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.root = addr
}

func (t *Topology) Addr(id NodeId) (netip.Addr, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	addr, ok := t.addrs[id]
	return addr, ok
}

// Parent returns the parent of id, and false when id is attached to the root.
func (t *Topology) Parent(id NodeId) (NodeId, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	p, ok := t.parents[id]
	if !ok || p == id {
		return 0, false
	}
	if _, known := t.addrs[p]; !known {
		return 0, false
	}
	return p, true
}

// Resolver returns the Resolver node id uses.
func (t *Topology) Resolver(id NodeId) Resolver {
	return &topologyResolver{t: t, id: id}
}

type topologyResolver struct {
	t  *Topology
	id NodeId
}

func (r *topologyResolver) RootAddr() (netip.Addr, bool) {
	r.t.mutex.RLock()
	defer r.t.mutex.RUnlock()
	return r.t.root, usable(r.t.root)
}

func (r *topologyResolver) ParentAddr() (netip.Addr, bool) {
	p, ok := r.t.Parent(r.id)
	if !ok {
		return netip.Addr{}, false
	}
	return r.t.Addr(p)
}

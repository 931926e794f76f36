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

package simulation

import (
	"net/netip"
	"sync"

	"github.com/openthread/ot-sink/radiomodel"
	. "github.com/openthread/ot-sink/types"
)

// maxHops bounds route lookups, so a parent loop cannot hang the mesh.
const maxHops = 16

// radioLinks decides delivery on the mesh from node positions through a radio model. Datagrams
// between a leaf and the coordinator travel hop by hop along the leaf's parent chain.
type radioLinks struct {
	mutex   sync.RWMutex
	model   *radiomodel.RadioModel
	root    netip.Addr
	nodes   map[netip.Addr]*radiomodel.RadioNode
	parents map[netip.Addr]netip.Addr
	failed  map[NodeId]bool
}

func newRadioLinks(model *radiomodel.RadioModel, root netip.Addr) *radioLinks {
	return &radioLinks{
		model:   model,
		root:    root,
		nodes:   map[netip.Addr]*radiomodel.RadioNode{},
		parents: map[netip.Addr]netip.Addr{},
		failed:  map[NodeId]bool{},
	}
}

// setParent sets the next hop towards the coordinator. An invalid parent means a direct link.
func (rl *radioLinks) setParent(addr netip.Addr, parent netip.Addr) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	if parent.IsValid() {
		rl.parents[addr] = parent
	} else {
		delete(rl.parents, addr)
	}
}

// route returns the hops from src to dst, both included.
func (rl *radioLinks) route(src, dst netip.Addr) []netip.Addr {
	switch {
	case dst == rl.root:
		return rl.chain(src)
	case src == rl.root:
		hops := rl.chain(dst)
		for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
			hops[i], hops[j] = hops[j], hops[i]
		}
		return hops
	default:
		return []netip.Addr{src, dst}
	}
}

func (rl *radioLinks) chain(addr netip.Addr) []netip.Addr {
	hops := []netip.Addr{addr}
	for len(hops) <= maxHops {
		parent, ok := rl.parents[addr]
		if !ok {
			break
		}
		hops = append(hops, parent)
		addr = parent
	}
	return append(hops, rl.root)
}

func (rl *radioLinks) add(addr netip.Addr, node *radiomodel.RadioNode) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.nodes[addr] = node
}

func (rl *radioLinks) move(addr netip.Addr, x, y, z int) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	node, ok := rl.nodes[addr]
	if ok {
		node.SetNodePos(x, y, z)
	}
	return ok
}

func (rl *radioLinks) setFailed(id NodeId, failed bool) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	if failed {
		rl.failed[id] = true
	} else {
		delete(rl.failed, id)
	}
}

func (rl *radioLinks) isFailed(id NodeId) bool {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return rl.failed[id]
}

// Link implements transport.LinkModel. The success probability is the product over all hops; the
// RSSI is the one of the last hop. Unknown endpoints and failed nodes never forward or receive.
func (rl *radioLinks) Link(src, dst netip.Addr, payloadLen int) (Rssi, float64) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	hops := rl.route(src, dst)
	rssi, pSuccess := RssiInvalid, 1.0
	for i := 0; i+1 < len(hops); i++ {
		from, ok1 := rl.nodes[hops[i]]
		to, ok2 := rl.nodes[hops[i+1]]
		if !ok1 || !ok2 || rl.failed[from.Id] || rl.failed[to.Id] {
			return RssiMinusInfinity, 0
		}
		var p float64
		rssi, p = rl.model.LinkQuality(from, to, payloadLen)
		pSuccess *= p
	}
	return rssi, pSuccess
}

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

package types

import (
	"fmt"
	"sort"
)

// NodeId identifies a leaf in the sink tree. It is carried as a single byte on the wire.
type NodeId uint8

// Ticks is a reading of the network uptime clock.
type Ticks uint64

// Rssi is a received signal strength in dBm.
type Rssi int8

const (
	// UdpPort is the port used by both the coordinator and the nodes.
	UdpPort = 1234

	// RegistrySize bounds the identifier range used when no explicit id set is configured.
	RegistrySize = 16

	// RssiInvalid is reported when the transport has no radio side channel.
	RssiInvalid Rssi = 127

	// RssiMinusInfinity is reported for signals below the representable range.
	RssiMinusInfinity Rssi = -128

	// MaxDisplayPrr is the upper bound when rendering a PRR percentage.
	MaxDisplayPrr = 999

	DefaultTicksPerSecond = 1000
)

// InvalidNodeId is never assigned to a node; it stands for "no node", e.g. no parent.
const InvalidNodeId NodeId = 0

// DefaultNodeIds are the node identifiers deployed in the reference tree.
var DefaultNodeIds = []NodeId{4, 15, 88, 171}

// GetNodeName returns the display prefix used in logs for a node.
func GetNodeName(id NodeId) string {
	return fmt.Sprintf("Node<%d> ", id)
}

// NodeDomain is the set of node identifiers a coordinator accepts.
type NodeDomain struct {
	ids []NodeId
	set map[NodeId]struct{}
}

// NewNodeDomain returns a domain holding exactly ids. An empty list selects the range 1..RegistrySize-1.
func NewNodeDomain(ids []NodeId) NodeDomain {
	d := NodeDomain{set: make(map[NodeId]struct{}, len(ids))}
	if len(ids) == 0 {
		for id := NodeId(1); id < RegistrySize; id++ {
			d.set[id] = struct{}{}
		}
	} else {
		for _, id := range ids {
			d.set[id] = struct{}{}
		}
	}

	d.ids = make([]NodeId, 0, len(d.set))
	for id := range d.set {
		d.ids = append(d.ids, id)
	}
	sort.Slice(d.ids, func(i, j int) bool {
		return d.ids[i] < d.ids[j]
	})
	return d
}

// Contains returns whether id is a configured node.
func (d NodeDomain) Contains(id NodeId) bool {
	_, ok := d.set[id]
	return ok
}

// Ids returns the configured identifiers in ascending order.
func (d NodeDomain) Ids() []NodeId {
	ids := make([]NodeId, len(d.ids))
	copy(ids, d.ids)
	return ids
}

func (d NodeDomain) Len() int {
	return len(d.ids)
}

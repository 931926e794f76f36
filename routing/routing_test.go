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

package routing

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	root := netip.MustParseAddr("fd00::1")
	s := NewStatic(root, netip.Addr{})

	addr, ok := s.RootAddr()
	assert.True(t, ok)
	assert.Equal(t, root, addr)
	_, ok = s.ParentAddr()
	assert.False(t, ok)

	s.SetParent(netip.MustParseAddr("fd00::4"))
	_, ok = s.ParentAddr()
	assert.True(t, ok)

	s.SetRoot(netip.IPv6Unspecified())
	_, ok = s.RootAddr()
	assert.False(t, ok)
}

func TestTopology(t *testing.T) {
	root := netip.MustParseAddr("fd00::1")
	topo := NewTopology(root)
	topo.AddNode(4, netip.MustParseAddr("fd00::4"), 4)
	topo.AddNode(15, netip.MustParseAddr("fd00::f"), 4)
	topo.AddNode(88, netip.MustParseAddr("fd00::58"), 200)

	r4 := topo.Resolver(4)
	addr, ok := r4.RootAddr()
	assert.True(t, ok)
	assert.Equal(t, root, addr)
	_, ok = r4.ParentAddr()
	assert.False(t, ok)

	addr, ok = topo.Resolver(15).ParentAddr()
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("fd00::4"), addr)

	// unknown parent means attached to the root.
	_, ok = topo.Resolver(88).ParentAddr()
	assert.False(t, ok)

	topo.SetParent(88, 15)
	addr, ok = topo.Resolver(88).ParentAddr()
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("fd00::f"), addr)

	topo.SetRoot(netip.Addr{})
	_, ok = r4.RootAddr()
	assert.False(t, ok)
}

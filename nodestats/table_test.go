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

package nodestats

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/openthread/ot-sink/payload"
	. "github.com/openthread/ot-sink/types"
)

var (
	testDomain = NewNodeDomain(DefaultNodeIds)
	nodeAddr   = netip.MustParseAddr("fd00::f")
)

func newTestTable() *Table {
	tbl := NewTable(testDomain)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.now = func() time.Time { return fixed }
	return tbl
}

func frame(id NodeId, seq uint16) *payload.Frame {
	return &payload.Frame{NodeId: id, TxSequence: seq, ParentAddress: netip.IPv6Unspecified()}
}

func TestPrr(t *testing.T) {
	tbl := newTestTable()
	for i := 0; i < 3; i++ {
		_, err := tbl.Record(frame(15, 10), Reception{Src: nodeAddr})
		assert.Nil(t, err)
	}
	e, ok := tbl.Get(15)
	assert.True(t, ok)
	assert.Equal(t, uint16(10), e.TxCount)
	assert.Equal(t, uint32(3), e.RxCount)
	assert.Equal(t, 30, e.Prr())
}

func TestPrrZeroTx(t *testing.T) {
	tbl := newTestTable()
	e, err := tbl.Record(frame(4, 0), Reception{Src: nodeAddr})
	assert.Nil(t, err)
	assert.Equal(t, uint32(1), e.RxCount)
	assert.Equal(t, 0, e.Prr())
}

func TestPrrTruncates(t *testing.T) {
	e := Entry{TxCount: 3, RxCount: 1}
	assert.Equal(t, 33, e.Prr())
	e = Entry{TxCount: 3, RxCount: 2}
	assert.Equal(t, 66, e.Prr())
}

func TestRestartOverwritesTxCount(t *testing.T) {
	tbl := newTestTable()
	for seq := uint16(1); seq <= 20; seq++ {
		_, err := tbl.Record(frame(88, seq), Reception{Src: nodeAddr})
		assert.Nil(t, err)
	}
	e, err := tbl.Record(frame(88, 2), Reception{Src: nodeAddr})
	assert.Nil(t, err)
	assert.Equal(t, uint16(2), e.TxCount)
	assert.Equal(t, uint32(21), e.RxCount)
	assert.Equal(t, 1050, e.Prr())
	assert.Equal(t, MaxDisplayPrr, e.DisplayPrr())
}

func TestUnknownNodeCreatesNothing(t *testing.T) {
	tbl := newTestTable()
	_, err := tbl.Record(frame(5, 1), Reception{Src: nodeAddr})
	assert.True(t, errors.Is(err, ErrInvalidNodeId))
	_, ok := tbl.Get(5)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.Snapshot())
}

func TestRecordOverwritesAddresses(t *testing.T) {
	tbl := newTestTable()
	parent := netip.MustParseAddr("fd00::4")
	f := frame(171, 1)
	f.ParentAddress = parent
	f.Temperature = 27
	f.SendTimestamp = 100
	e, err := tbl.Record(f, Reception{Src: nodeAddr, Rssi: -70, ArrivalTicks: 130})
	assert.Nil(t, err)
	assert.Equal(t, nodeAddr, e.NodeAddress)
	assert.Equal(t, parent, e.ParentAddress)
	assert.False(t, e.ViaRoot())
	assert.Equal(t, Rssi(-70), e.LastRssi)
	assert.Equal(t, int16(27), e.LastTemperature)
	assert.True(t, e.HasLatency)
	assert.Equal(t, Ticks(30), e.LastLatencyTicks)

	other := netip.MustParseAddr("fd00::ab")
	e, err = tbl.Record(frame(171, 2), Reception{Src: other, Rssi: RssiInvalid})
	assert.Nil(t, err)
	assert.Equal(t, other, e.NodeAddress)
	assert.True(t, e.ViaRoot())
	assert.False(t, e.HasLatency)
}

func TestSnapshotOrder(t *testing.T) {
	tbl := newTestTable()
	for _, id := range []NodeId{171, 4, 88} {
		_, err := tbl.Record(frame(id, 5), Reception{Src: nodeAddr})
		assert.Nil(t, err)
	}
	rows := tbl.Snapshot()
	var ids []NodeId
	for _, r := range rows {
		ids = append(ids, r.NodeId)
		assert.Equal(t, 20, r.Prr)
	}
	if diff := cmp.Diff([]NodeId{4, 88, 171}, ids); diff != "" {
		t.Errorf("snapshot order mismatch (-want +got):\n%s", diff)
	}

	rows[0].RxCount = 1000
	e, _ := tbl.Get(4)
	assert.Equal(t, uint32(1), e.RxCount)
}

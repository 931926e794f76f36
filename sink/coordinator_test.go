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

package sink

import (
	"context"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openthread/ot-sink/nodestats"
	"github.com/openthread/ot-sink/payload"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

var (
	coordAddr = netip.MustParseAddrPort("[fd00::1]:1234")
	node4Addr = netip.MustParseAddrPort("[fd00::4]:1234")
)

type recordingSink struct {
	ch chan *Snapshot
}

func (r *recordingSink) Name() string {
	return "recording"
}

func (r *recordingSink) OnSnapshot(_ context.Context, s *Snapshot) error {
	select {
	case r.ch <- s:
	default:
	}
	return nil
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *transport.MeshConn, *uptime.Manual) {
	mesh := transport.NewMesh(nil, 1)
	conn, err := mesh.Attach(coordAddr)
	assert.Nil(t, err)
	node, err := mesh.Attach(node4Addr)
	assert.Nil(t, err)
	clock := uptime.NewManual(1000)
	return NewCoordinator(cfg, conn, clock), node, clock
}

func datagram(src netip.AddrPort, data []byte) *transport.Datagram {
	return &transport.Datagram{Src: src, Dst: coordAddr, Payload: data, Rssi: -55, HopLimit: -1}
}

func TestHandleFrame(t *testing.T) {
	c, _, _ := newTestCoordinator(t, DefaultConfig())
	codec := payload.NewCodec(payload.VariantParent, NewNodeDomain(DefaultNodeIds))

	for seq := uint16(1); seq <= 4; seq++ {
		if seq == 3 {
			continue
		}
		f := &payload.Frame{NodeId: 4, TxSequence: seq, Temperature: 25, ParentAddress: netip.IPv6Unspecified()}
		c.HandleDatagram(datagram(node4Addr, codec.Encode(f)))
	}

	e, ok := c.Table().Get(4)
	assert.True(t, ok)
	assert.Equal(t, uint16(4), e.TxCount)
	assert.Equal(t, uint32(3), e.RxCount)
	assert.Equal(t, 75, e.Prr())
	assert.Equal(t, node4Addr.Addr(), e.NodeAddress)
	assert.Equal(t, Rssi(-55), e.LastRssi)
	assert.False(t, e.HasLatency)
	assert.Equal(t, uint64(3), c.Counters.FramesAccepted)
}

func TestHandleBadFrames(t *testing.T) {
	c, _, _ := newTestCoordinator(t, DefaultConfig())
	codec := payload.NewCodec(payload.VariantParent, NewNodeDomain(nil))

	c.HandleDatagram(datagram(node4Addr, []byte{4, 0, 1}))
	c.HandleDatagram(datagram(node4Addr, codec.Encode(&payload.Frame{NodeId: 5, TxSequence: 1})))

	assert.Equal(t, uint64(1), c.Counters.FramesTooShort)
	assert.Equal(t, uint64(1), c.Counters.FramesInvalidNode)
	assert.Equal(t, uint64(0), c.Counters.FramesAccepted)
	assert.Equal(t, 0, c.Table().Len())
}

func TestSharedClockLatency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SharedClock = true
	c, _, clock := newTestCoordinator(t, cfg)
	codec := payload.NewCodec(payload.VariantParent, cfg.Domain)

	clock.Set(1250)
	c.HandleDatagram(datagram(node4Addr, codec.Encode(&payload.Frame{NodeId: 4, TxSequence: 1, SendTimestamp: 1200})))
	e, _ := c.Table().Get(4)
	assert.True(t, e.HasLatency)
	assert.Equal(t, Ticks(50), e.LastLatencyTicks)
	assert.Contains(t, formatReception(&e, 1000), "Latency: 50 ms")
}

func TestAnswerPing(t *testing.T) {
	c, node, _ := newTestCoordinator(t, DefaultConfig())
	c.HandleDatagram(datagram(node4Addr, []byte("PING")))
	assert.Equal(t, uint64(1), c.Counters.PingsAnswered)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dg, err := node.Receive(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []byte("PONG"), dg.Payload)
	assert.Equal(t, coordAddr, dg.Src)
	assert.Equal(t, 0, c.Table().Len())
}

func TestRenderDump(t *testing.T) {
	s := &Snapshot{
		Coordinator: "fd00::1",
		Rows: []nodestats.Row{
			{Entry: nodestats.Entry{NodeId: 4, TxCount: 10, RxCount: 7, NodeAddress: netip.MustParseAddr("fd00::4"),
				ParentAddress: netip.IPv6Unspecified()}},
			{Entry: nodestats.Entry{NodeId: 15, TxCount: 2, RxCount: 30, NodeAddress: netip.MustParseAddr("fd00::f"),
				ParentAddress: netip.MustParseAddr("fd00::4")}},
		},
	}
	assert.Equal(t, []string{
		"Coordinator: fd00::1",
		"Routing Table:",
		"Node ID 4 [fd00::4] via root | TX: 10 | RX: 7 | PRR: 70%",
		"Node ID 15 [fd00::f] via fd00::4 | TX: 2 | RX: 30 | PRR: 999%",
	}, RenderDump(s))

	lines := RenderDump(&Snapshot{})
	assert.Equal(t, "Coordinator address unavailable.", lines[0])
}

func TestFormatReception(t *testing.T) {
	e := &nodestats.Entry{NodeId: 88, TxCount: 4, RxCount: 2, LastRssi: RssiInvalid, LastTemperature: 27}
	assert.Equal(t, "Node 88 | TX: 4 | RX: 2 | PRR: 50% | RSSI: n/a | Temperature: 27C", formatReception(e, 1000))
	e.LastRssi = -71
	e.PingSentCount = 4
	e.PongReceivedCount = 3
	e.LastRttMs = 42
	assert.Equal(t, "Node 88 | TX: 4 | RX: 2 | PRR: 50% | RSSI: -71 | Temperature: 27C | Ping: 3/4 RTT: 42 ms",
		formatReception(e, 1000))
}

func TestCoordinatorRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DumpInterval = 20 * time.Millisecond
	c, node, _ := newTestCoordinator(t, cfg)
	rec := &recordingSink{ch: make(chan *Snapshot, 1)}
	c.AddSnapshotSink(rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	codec := payload.NewCodec(cfg.Variant, cfg.Domain)
	assert.Nil(t, node.Send(coordAddr, codec.Encode(&payload.Frame{NodeId: 4, TxSequence: 1})))

	deadline := time.After(2 * time.Second)
	for {
		var s *Snapshot
		select {
		case s = <-rec.ch:
		case <-deadline:
			t.Fatal("no snapshot with node 4")
		}
		if len(s.Rows) == 1 {
			assert.Equal(t, NodeId(4), s.Rows[0].NodeId)
			assert.Equal(t, 100, s.Rows[0].Prr)
			assert.Equal(t, "fd00::1", s.Coordinator)
			assert.Equal(t, c.RunId(), s.RunId)
			break
		}
	}

	cancel()
	<-done
}

func TestReportFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "report.json")
	r := NewReportFile(fn)
	s := &Snapshot{RunId: "run", Nodes: DefaultNodeIds,
		Rows: []nodestats.Row{{Entry: nodestats.Entry{NodeId: 4, TxCount: 2, RxCount: 1}, Prr: 50}}}
	assert.Nil(t, r.OnSnapshot(context.Background(), s))

	data, err := os.ReadFile(fn)
	assert.Nil(t, err)
	var decoded map[string]interface{}
	assert.Nil(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run", decoded["runId"])
	assert.Equal(t, []interface{}{4.0, 15.0, 88.0, 171.0}, decoded["nodes"])
	rows := decoded["rows"].([]interface{})
	assert.Equal(t, 50.0, rows[0].(map[string]interface{})["prr"])
}

func TestNodeListJson(t *testing.T) {
	var l NodeList
	assert.Nil(t, json.Unmarshal([]byte("[4, 171]"), &l))
	assert.Equal(t, NodeList{4, 171}, l)
	assert.NotNil(t, json.Unmarshal([]byte("[256]"), &l))
}

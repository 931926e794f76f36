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

// Package sink implements the coordinator: it receives node reports, keeps the node statistics
// table, answers liveness pings and periodically dumps the table.
package sink

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/cadence"
	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/nodestats"
	"github.com/openthread/ot-sink/payload"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

const (
	DefaultDumpInterval = 5 * time.Second
	snapshotQueueLen    = 4
)

type Config struct {
	Domain       NodeDomain
	Variant      payload.Variant
	DumpInterval time.Duration

	// Address is shown as the coordinator address in dumps. If invalid, the local address of the
	// connection is used when it is specific.
	Address netip.Addr

	// SharedClock means nodes stamp frames with the same network clock the coordinator reads, so
	// arrival minus send time is a latency.
	SharedClock bool

	QueueLen int
}

func DefaultConfig() Config {
	return Config{
		Domain:       NewNodeDomain(DefaultNodeIds),
		Variant:      payload.VariantParent,
		DumpInterval: DefaultDumpInterval,
		QueueLen:     cadence.DefaultQueueLen,
	}
}

// SnapshotSink receives every periodic snapshot. Sinks run on their own goroutine, never on the
// coordinator loop.
type SnapshotSink interface {
	Name() string
	OnSnapshot(ctx context.Context, s *Snapshot) error
}

// PacketSink receives every datagram the coordinator reads.
type PacketSink interface {
	WritePacket(dg *transport.Datagram) error
}

// Counters are only accessed on the coordinator loop.
type Counters struct {
	DatagramsReceived uint64
	FramesAccepted    uint64
	FramesTooShort    uint64
	FramesInvalidNode uint64
	PingsAnswered     uint64
	PongSendFailures  uint64
	Dumps             uint64
	SnapshotsDropped  uint64
	CaptureFailures   uint64
}

// Coordinator is the root of the sink tree.
type Coordinator struct {
	Counters Counters

	cfg       Config
	conn      transport.Conn
	clock     uptime.Clock
	codec     *payload.Codec
	table     *nodestats.Table
	loop      *cadence.Loop
	runId     uuid.UUID
	startTime time.Time

	sinks     []SnapshotSink
	snapshots chan *Snapshot
	capture   PacketSink
}

func NewCoordinator(cfg Config, conn transport.Conn, clock uptime.Clock) *Coordinator {
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = DefaultDumpInterval
	}
	return &Coordinator{
		cfg:       cfg,
		conn:      conn,
		clock:     clock,
		codec:     payload.NewCodec(cfg.Variant, cfg.Domain),
		table:     nodestats.NewTable(cfg.Domain),
		loop:      cadence.NewLoop("coordinator", cfg.QueueLen),
		runId:     uuid.New(),
		startTime: time.Now(),
		snapshots: make(chan *Snapshot, snapshotQueueLen),
	}
}

// AddSnapshotSink registers s. It must be called before Run.
func (c *Coordinator) AddSnapshotSink(s SnapshotSink) {
	c.sinks = append(c.sinks, s)
}

// SetCapture sets where received datagrams are copied to. It must be called before Run.
func (c *Coordinator) SetCapture(p PacketSink) {
	c.capture = p
}

func (c *Coordinator) Table() *nodestats.Table {
	return c.table
}

func (c *Coordinator) Loop() *cadence.Loop {
	return c.loop
}

func (c *Coordinator) RunId() string {
	return c.runId.String()
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

// Address returns the coordinator address shown in dumps.
func (c *Coordinator) Address() (netip.Addr, bool) {
	if c.cfg.Address.IsValid() && !c.cfg.Address.IsUnspecified() {
		return c.cfg.Address, true
	}
	local := c.conn.LocalAddr().Addr()
	if local.IsValid() && !local.IsUnspecified() {
		return local, true
	}
	return netip.Addr{}, false
}

// Run serves until ctx is done. It closes the connection on return.
func (c *Coordinator) Run(ctx context.Context) {
	defer func() {
		_ = c.conn.Close()
	}()
	logger.Infof("coordinator %s listening on %s, %s frames, nodes %v", c.runId, c.conn.LocalAddr(),
		c.cfg.Variant, c.cfg.Domain.Ids())

	c.loop.Every("dump", c.cfg.DumpInterval, c.Dump)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.reader(ctx)
	}()

	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		c.publisher(ctx)
	}()

	c.loop.Run(ctx)
	_ = c.conn.Close()
	<-readerDone
	<-publisherDone
}

func (c *Coordinator) reader(ctx context.Context) {
	for {
		dg, err := c.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debugf("coordinator reader quit.")
				return
			}
			logger.Warnf("coordinator receive failed: %v", err)
			continue
		}

		if !c.loop.TryPost(func() { c.HandleDatagram(&dg) }) {
			logger.Warnf("coordinator queue full, dropped datagram from %s", dg.Src)
		}
	}
}

// HandleDatagram processes one received datagram. It runs on the coordinator loop.
func (c *Coordinator) HandleDatagram(dg *transport.Datagram) {
	c.Counters.DatagramsReceived++
	if c.capture != nil {
		if err := c.capture.WritePacket(dg); err != nil {
			c.Counters.CaptureFailures++
			logger.Debugf("capture failed: %v", err)
		}
	}

	if liveness.IsPing(dg.Payload) {
		c.answerPing(dg)
		return
	}

	f, err := c.codec.Decode(dg.Payload)
	if err != nil {
		c.handleDecodeError(dg, err)
		return
	}

	rx := nodestats.Reception{
		Src:  dg.Src.Addr(),
		Rssi: dg.Rssi,
	}
	if c.cfg.SharedClock {
		rx.ArrivalTicks = c.clock.Now()
	}
	e, err := c.table.Record(f, rx)
	if err != nil {
		c.Counters.FramesInvalidNode++
		logger.Errorf("Invalid node ID %d", f.NodeId)
		return
	}
	c.Counters.FramesAccepted++
	c.logReception(&e)
}

func (c *Coordinator) answerPing(dg *transport.Datagram) {
	if err := c.conn.Send(dg.Src, liveness.PongMarker()); err != nil {
		c.Counters.PongSendFailures++
		logger.Warnf("pong to %s failed: %v", dg.Src, err)
		return
	}
	c.Counters.PingsAnswered++
	logger.Tracef("pong to %s", dg.Src)
}

func (c *Coordinator) handleDecodeError(dg *transport.Datagram, err error) {
	switch {
	case errors.Is(err, ErrDecodeTooShort):
		c.Counters.FramesTooShort++
		logger.Warnf("dropped datagram from %s: %v", dg.Src, err)
	case errors.Is(err, ErrInvalidNodeId):
		c.Counters.FramesInvalidNode++
		logger.Errorf("Invalid node ID %d", dg.Payload[0])
	default:
		logger.Errorf("dropped datagram from %s: %v", dg.Src, err)
	}
}

func (c *Coordinator) logReception(e *nodestats.Entry) {
	line := formatReception(e, c.clock.TicksPerSecond())
	logger.Infof("%s", line)
	logger.GetNodeLogger(e.NodeId).Debugf("rx from %s parent %s", e.NodeAddress, parentString(e))
}

// Dump renders the table and hands a snapshot to the snapshot sinks. It runs on the coordinator loop.
func (c *Coordinator) Dump() {
	c.Counters.Dumps++
	s := c.Snapshot()
	for _, line := range RenderDump(s) {
		logger.Infof("%s", line)
	}

	if len(c.sinks) == 0 {
		return
	}
	select {
	case c.snapshots <- s:
	default:
		c.Counters.SnapshotsDropped++
		logger.Warnf("snapshot sinks busy, dropped snapshot %d", c.Counters.Dumps)
	}
}

// Snapshot returns the current table contents.
func (c *Coordinator) Snapshot() *Snapshot {
	s := &Snapshot{
		RunId:  c.RunId(),
		Time:   time.Now(),
		Uptime: time.Since(c.startTime).Round(time.Millisecond).String(),
		Nodes:  c.cfg.Domain.Ids(),
		Rows:   c.table.Snapshot(),
	}
	if addr, ok := c.Address(); ok {
		s.Coordinator = addr.String()
	}
	return s
}

func (c *Coordinator) publisher(ctx context.Context) {
	for {
		select {
		case s := <-c.snapshots:
			for _, sink := range c.sinks {
				sctx, cancel := context.WithTimeout(ctx, c.cfg.DumpInterval)
				if err := sink.OnSnapshot(sctx, s); err != nil {
					logger.Warnf("snapshot sink %s failed: %v", sink.Name(), err)
				}
				cancel()
			}
		case <-ctx.Done():
			return
		}
	}
}

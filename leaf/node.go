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

// Package leaf implements a reporting node of the sink tree.
package leaf

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/cadence"
	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/payload"
	"github.com/openthread/ot-sink/routing"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

const (
	DefaultReportInterval = 20 * time.Second
	DefaultPingInterval   = 10 * time.Second
)

type Config struct {
	Id             NodeId
	Variant        payload.Variant
	ReportInterval time.Duration

	// PingInterval of 0 disables liveness pings.
	PingInterval time.Duration
	RootPort     uint16
	QueueLen     int
}

func DefaultConfig(id NodeId) Config {
	return Config{
		Id:             id,
		Variant:        payload.VariantParent,
		ReportInterval: DefaultReportInterval,
		PingInterval:   DefaultPingInterval,
		RootPort:       UdpPort,
	}
}

// Counters are only accessed on the node loop.
type Counters struct {
	ReportsSent       uint64
	ReportsSkipped    uint64
	SendFailures      uint64
	PingsSent         uint64
	PingsSkipped      uint64
	RepliesIgnored    uint64
	DatagramsReceived uint64
}

// Node periodically reports a sensor sample to the root and measures the round trip to it.
type Node struct {
	Counters Counters

	cfg        Config
	conn       transport.Conn
	clock      uptime.Clock
	resolver   routing.Resolver
	sensor     Sensor
	codec      *payload.Codec
	estimator  *liveness.Estimator
	loop       *cadence.Loop
	log        *logger.NodeLogger
	txSequence uint16
}

func NewNode(cfg Config, conn transport.Conn, clock uptime.Clock, resolver routing.Resolver, sensor Sensor) *Node {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.RootPort == 0 {
		cfg.RootPort = UdpPort
	}
	return &Node{
		cfg:       cfg,
		conn:      conn,
		clock:     clock,
		resolver:  resolver,
		sensor:    sensor,
		codec:     payload.NewCodec(cfg.Variant, NewNodeDomain([]NodeId{cfg.Id})),
		estimator: liveness.NewEstimator(clock),
		loop:      cadence.NewLoop(GetNodeName(cfg.Id), cfg.QueueLen),
		log:       logger.GetNodeLogger(cfg.Id),
	}
}

func (n *Node) Id() NodeId {
	return n.cfg.Id
}

func (n *Node) Liveness() *liveness.Estimator {
	return n.estimator
}

func (n *Node) Loop() *cadence.Loop {
	return n.loop
}

func (n *Node) LocalAddr() netip.AddrPort {
	return n.conn.LocalAddr()
}

// TxSequence returns the sequence number of the last report attempt. It is only accessed on the node loop.
func (n *Node) TxSequence() uint16 {
	return n.txSequence
}

// Run reports and pings until ctx is done. It closes the connection on return.
func (n *Node) Run(ctx context.Context) {
	defer func() {
		_ = n.conn.Close()
	}()
	n.log.Infof("started on %s, reporting every %v", n.conn.LocalAddr(), n.cfg.ReportInterval)

	n.loop.Every("report", n.cfg.ReportInterval, n.Report)
	if n.cfg.PingInterval > 0 {
		n.loop.Every("ping", n.cfg.PingInterval, n.Ping)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		n.reader(ctx)
	}()

	n.loop.Run(ctx)
	_ = n.conn.Close()
	<-readerDone
}

func (n *Node) reader(ctx context.Context) {
	for {
		dg, err := n.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Warnf("receive failed: %v", err)
			continue
		}
		n.loop.TryPost(func() { n.HandleDatagram(&dg) })
	}
}

func (n *Node) rootAddrPort() (netip.AddrPort, bool) {
	root, ok := n.resolver.RootAddr()
	if !ok {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(root, n.cfg.RootPort), true
}

// Report sends one sensor report to the root. The sequence number advances even when the root is
// unavailable, so the coordinator sees the skipped report as lost.
func (n *Node) Report() {
	n.txSequence++

	root, ok := n.rootAddrPort()
	if !ok {
		n.Counters.ReportsSkipped++
		n.log.Errorf("Failed to get coordinator IP address.")
		return
	}

	f := &payload.Frame{
		NodeId:        n.cfg.Id,
		TxSequence:    n.txSequence,
		SendTimestamp: n.clock.Now(),
		Temperature:   n.sensor.Temperature(),
		ParentAddress: netip.IPv6Unspecified(),
	}
	if parent, ok := n.resolver.ParentAddr(); ok {
		f.ParentAddress = parent
	}
	if n.cfg.Variant == payload.VariantExtended {
		st := n.estimator.State()
		f.PongReceivedCount = uint16(st.PongReceivedCount)
		f.PingSentCount = uint16(st.PingSentCount)
		f.LastRttMs = st.LastRttMs
	}

	if err := n.conn.Send(root, n.codec.Encode(f)); err != nil {
		n.Counters.SendFailures++
		n.log.Warnf("send to %s failed: %v", root, err)
		return
	}
	n.Counters.ReportsSent++
	n.log.Infof("Sent data with TX count = %d | Send Time: %d | Temperature: %dC", f.TxSequence, f.SendTimestamp,
		f.Temperature)
}

// Ping sends a liveness ping to the root, superseding any unanswered one. Without a root address
// nothing is sent and nothing is counted.
func (n *Node) Ping() {
	root, ok := n.rootAddrPort()
	if !ok {
		n.Counters.PingsSkipped++
		n.log.Debugf("ping skipped, no coordinator address")
		return
	}

	if err := n.conn.Send(root, n.estimator.SendPing()); err != nil {
		n.Counters.SendFailures++
		n.log.Warnf("ping to %s failed: %v", root, err)
		return
	}
	n.Counters.PingsSent++
}

// HandleDatagram processes a datagram received by the node. It runs on the node loop.
func (n *Node) HandleDatagram(dg *transport.Datagram) {
	n.Counters.DatagramsReceived++
	if err := n.estimator.OnPongReceived(dg.Payload, n.clock.Now()); err != nil {
		n.Counters.RepliesIgnored++
		n.log.Tracef("ignored datagram from %s: %v", dg.Src, err)
		return
	}
	st := n.estimator.State()
	n.log.Debugf("pong, rtt %d ms, loss %.1f%%", st.LastRttMs, st.LossPct())
}

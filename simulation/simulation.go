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

// Package simulation runs a coordinator and its leaves in one process over a simulated radio mesh.
package simulation

import (
	"context"
	"net/netip"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/cadence"
	"github.com/openthread/ot-sink/leaf"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/prng"
	"github.com/openthread/ot-sink/radiomodel"
	"github.com/openthread/ot-sink/routing"
	"github.com/openthread/ot-sink/sink"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

type Simulation struct {
	cfg         *Config
	clock       *uptime.Monotonic
	mesh        *transport.Mesh
	links       *radioLinks
	topology    *routing.Topology
	rootAddr    netip.Addr
	coordinator *sink.Coordinator
	nodes       map[NodeId]*leaf.Node
	kpi         *KpiManager
	loop        *cadence.Loop

	failMutex sync.Mutex
	failCtrls map[NodeId]*failureCtrl
}

// RootAddr returns the coordinator address within prefix.
func RootAddr(prefix netip.Prefix) netip.Addr {
	b := prefix.Masked().Addr().As16()
	b[15] = 1
	return netip.AddrFrom16(b)
}

// NodeAddr returns the address of node id within prefix, <prefix>::1:<id>.
func NodeAddr(prefix netip.Prefix, id NodeId) netip.Addr {
	b := prefix.Masked().Addr().As16()
	b[13] = 1
	b[15] = byte(id)
	return netip.AddrFrom16(b)
}

func NewSimulation(cfg *Config) (*Simulation, error) {
	if cfg.Prefix.Bits() < 0 || !cfg.Prefix.Addr().Is6() || cfg.Prefix.Bits() > 104 {
		return nil, errors.Errorf("invalid simulation prefix %s", cfg.Prefix)
	}
	prng.Init(cfg.Seed)

	model, err := radiomodel.NewRadioModel(cfg.RadioModel, prng.NewLinkRandomSeed())
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:       cfg,
		clock:     uptime.NewMonotonic(DefaultTicksPerSecond),
		rootAddr:  RootAddr(cfg.Prefix),
		nodes:     map[NodeId]*leaf.Node{},
		loop:      cadence.NewLoop("simulation", 0),
		failCtrls: map[NodeId]*failureCtrl{},
	}
	s.links = newRadioLinks(model, s.rootAddr)
	s.mesh = transport.NewMesh(s.links, prng.NewLinkRandomSeed())
	if err = s.mesh.SetPlr(cfg.Plr); err != nil {
		return nil, err
	}
	s.topology = routing.NewTopology(s.rootAddr)
	s.links.add(s.rootAddr, radiomodel.NewRadioNode(0, &cfg.RootPos))

	if err = s.createCoordinator(); err != nil {
		return nil, err
	}
	for _, lc := range cfg.Leaves {
		if err = s.addLeaf(lc); err != nil {
			return nil, err
		}
	}
	s.kpi = newKpiManager(s)
	s.loop.Every("failures", failureTick, s.stepFailures)
	return s, nil
}

func (s *Simulation) createCoordinator() error {
	ids := s.cfg.Domain
	if len(ids) == 0 {
		for _, lc := range s.cfg.Leaves {
			ids = append(ids, lc.Id)
		}
	}

	ccfg := sink.DefaultConfig()
	ccfg.Domain = NewNodeDomain(ids)
	ccfg.Variant = s.cfg.Variant
	ccfg.DumpInterval = s.cfg.DumpInterval
	ccfg.Address = s.rootAddr
	ccfg.SharedClock = true

	conn, err := s.mesh.Attach(netip.AddrPortFrom(s.rootAddr, UdpPort))
	if err != nil {
		return err
	}
	s.coordinator = sink.NewCoordinator(ccfg, conn, s.clock)
	return nil
}

func (s *Simulation) addLeaf(lc LeafConfig) error {
	if lc.Id == InvalidNodeId {
		return errors.Wrapf(ErrInvalidNodeId, "leaf id %d", lc.Id)
	}
	if _, ok := s.nodes[lc.Id]; ok {
		return errors.Errorf("leaf %d already exists", lc.Id)
	}

	addr := NodeAddr(s.cfg.Prefix, lc.Id)
	conn, err := s.mesh.Attach(netip.AddrPortFrom(addr, UdpPort))
	if err != nil {
		return err
	}
	s.topology.AddNode(lc.Id, addr, lc.Parent)
	s.links.add(addr, radiomodel.NewRadioNode(lc.Id, &radiomodel.RadioNodeConfig{X: lc.X, Y: lc.Y, Z: lc.Z}))
	if lc.Parent != InvalidNodeId {
		s.links.setParent(addr, NodeAddr(s.cfg.Prefix, lc.Parent))
	}

	ncfg := leaf.DefaultConfig(lc.Id)
	ncfg.Variant = s.cfg.Variant
	ncfg.ReportInterval = s.cfg.ReportInterval
	ncfg.PingInterval = s.cfg.PingInterval
	sensor := leaf.NewRandomSensor(prng.NewNodeRandomSeed())
	s.nodes[lc.Id] = leaf.NewNode(ncfg, conn, s.clock, s.topology.Resolver(lc.Id), sensor)
	if lc.FailTime.CanFail() {
		if err = s.SetNodeFailTime(lc.Id, lc.FailTime); err != nil {
			return err
		}
	}
	logger.Debugf("simulation: added leaf %d at %s, parent %d", lc.Id, addr, lc.Parent)
	return nil
}

// Run runs the coordinator and all leaves until ctx is done.
func (s *Simulation) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2 + len(s.nodes))
	go func() {
		defer wg.Done()
		s.coordinator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.loop.Run(ctx)
	}()
	for _, n := range s.nodes {
		go func(n *leaf.Node) {
			defer wg.Done()
			n.Run(ctx)
		}(n)
	}

	s.kpi.Start()
	logger.Infof("simulation running with %d leaves, seed %d", len(s.nodes), s.cfg.Seed)
	wg.Wait()
	s.kpi.Stop()
}

func (s *Simulation) Config() *Config {
	return s.cfg
}

func (s *Simulation) Coordinator() *sink.Coordinator {
	return s.coordinator
}

func (s *Simulation) Mesh() *transport.Mesh {
	return s.mesh
}

func (s *Simulation) Topology() *routing.Topology {
	return s.topology
}

func (s *Simulation) Kpi() *KpiManager {
	return s.kpi
}

func (s *Simulation) Clock() uptime.Clock {
	return s.clock
}

// GetNodes returns the sorted leaf ids.
func (s *Simulation) GetNodes() []NodeId {
	ids := make([]NodeId, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Simulation) Node(id NodeId) (*leaf.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

func (s *Simulation) SetPlr(plr float64) error {
	return s.mesh.SetPlr(plr)
}

// MoveNodeTo moves a leaf to a new position.
func (s *Simulation) MoveNodeTo(id NodeId, x, y, z int) error {
	if _, ok := s.nodes[id]; !ok {
		return errors.Errorf("node %d not found", id)
	}
	s.links.move(NodeAddr(s.cfg.Prefix, id), x, y, z)
	return nil
}

// SetNodeFailed makes a leaf's radio deaf and mute, or restores it.
func (s *Simulation) SetNodeFailed(id NodeId, failed bool) error {
	if _, ok := s.nodes[id]; !ok {
		return errors.Errorf("node %d not found", id)
	}
	s.links.setFailed(id, failed)
	logger.Infof("simulation: node %d failed=%v", id, failed)
	return nil
}

func (s *Simulation) IsNodeFailed(id NodeId) bool {
	return s.links.isFailed(id)
}

// SetNodeFailTime makes a leaf fail at random moments, for ft.FailDuration in every ft.FailInterval.
// NonFailTime stops this and recovers the leaf.
func (s *Simulation) SetNodeFailTime(id NodeId, ft FailTime) error {
	if _, ok := s.nodes[id]; !ok {
		return errors.Errorf("node %d not found", id)
	}
	if err := ft.Validate(); err != nil {
		return err
	}

	s.failMutex.Lock()
	defer s.failMutex.Unlock()

	fc, ok := s.failCtrls[id]
	if !ft.CanFail() {
		if ok {
			fc.SetFailTime(NonFailTime, s.clock.Now())
			delete(s.failCtrls, id)
		}
		return nil
	}
	if !ok {
		fc = newFailureCtrl(simNodeFailer{s.links, id}, ft, prng.NewSource(prng.NewNodeRandomSeed()),
			s.clock.TicksPerSecond())
		s.failCtrls[id] = fc
	}
	fc.SetFailTime(ft, s.clock.Now())
	logger.Infof("simulation: node %d fails %v every %v", id, ft.FailDuration, ft.FailInterval)
	return nil
}

func (s *Simulation) NodeFailTime(id NodeId) FailTime {
	s.failMutex.Lock()
	defer s.failMutex.Unlock()
	if fc, ok := s.failCtrls[id]; ok {
		return fc.failTime
	}
	return NonFailTime
}

func (s *Simulation) stepFailures() {
	s.failMutex.Lock()
	defer s.failMutex.Unlock()

	now := s.clock.Now()
	for _, fc := range s.failCtrls {
		fc.OnTimeAdvanced(now)
	}
}

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
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/liveness"
	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/transport"
	. "github.com/openthread/ot-sink/types"
)

type KpiTime struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	PeriodSec float64   `json:"duration"`
}

type KpiMesh struct {
	Sent           uint64  `json:"sent"`
	Delivered      uint64  `json:"delivered"`
	LostLink       uint64  `json:"lost_link"`
	LostPlr        uint64  `json:"lost_plr"`
	NoRoute        uint64  `json:"no_route"`
	DroppedFull    uint64  `json:"dropped_full"`
	DeliveryPct    float64 `json:"delivery_percent"`
	ConfiguredPlr  float64 `json:"plr"`
	AvgDps         float64 `json:"avg_dps"`
}

type KpiNode struct {
	TxCount      uint16           `json:"tx"`
	RxCount      uint32           `json:"rx"`
	Prr          int              `json:"prr"`
	LastRssi     Rssi             `json:"last_rssi"`
	LatencyTicks Ticks            `json:"last_latency_ticks"`
	Liveness     liveness.State   `json:"liveness"`
	Rtt          liveness.Summary `json:"rtt_ms"`
	LossPct      float64          `json:"loss_percent"`
}

type Kpi struct {
	FileTime string              `json:"created"`
	Status   string              `json:"status"`
	RunId    string              `json:"run_id"`
	Time     KpiTime             `json:"time"`
	Mesh     KpiMesh             `json:"mesh"`
	Nodes    map[NodeId]*KpiNode `json:"nodes"`
}

// KpiManager collects the key performance indicators of a simulation run.
type KpiManager struct {
	mutex         sync.Mutex
	sim           *Simulation
	data          *Kpi
	startCounters transport.MeshCounters
	isRunning     bool
}

func newKpiManager(sim *Simulation) *KpiManager {
	return &KpiManager{
		sim:  sim,
		data: &Kpi{Status: "ok"},
	}
}

func (km *KpiManager) Start() {
	km.mutex.Lock()
	defer km.mutex.Unlock()

	km.data = &Kpi{Status: "ok", RunId: km.sim.coordinator.RunId()}
	km.data.Time.Start = time.Now()
	km.startCounters = km.sim.mesh.Counters()
	km.isRunning = true
}

func (km *KpiManager) Stop() {
	km.mutex.Lock()
	defer km.mutex.Unlock()

	if km.isRunning {
		km.calculateKpis()
		km.isRunning = false
	}
}

func (km *KpiManager) IsRunning() bool {
	km.mutex.Lock()
	defer km.mutex.Unlock()
	return km.isRunning
}

// Current returns the KPIs up to now.
func (km *KpiManager) Current() *Kpi {
	km.mutex.Lock()
	defer km.mutex.Unlock()
	if km.isRunning {
		km.calculateKpis()
	}
	data := *km.data
	return &data
}

func (km *KpiManager) SaveFile(fn string) error {
	data := km.Current()
	data.FileTime = time.Now().Format(time.RFC3339)
	js, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal KPI data")
	}
	if err = os.WriteFile(fn, js, 0644); err != nil {
		return errors.Wrapf(err, "write KPI file %s", fn)
	}
	logger.Debugf("KPI saved to %s", fn)
	return nil
}

func getCountersDiff(cur transport.MeshCounters, start transport.MeshCounters) transport.MeshCounters {
	return transport.MeshCounters{
		Sent:        cur.Sent - start.Sent,
		Delivered:   cur.Delivered - start.Delivered,
		LostLink:    cur.LostLink - start.LostLink,
		LostPlr:     cur.LostPlr - start.LostPlr,
		NoRoute:     cur.NoRoute - start.NoRoute,
		DroppedFull: cur.DroppedFull - start.DroppedFull,
	}
}

func (km *KpiManager) calculateKpis() {
	// time
	km.data.Time.End = time.Now()
	period := km.data.Time.End.Sub(km.data.Time.Start).Seconds()
	km.data.Time.PeriodSec = period

	// mesh
	ctr := getCountersDiff(km.sim.mesh.Counters(), km.startCounters)
	km.data.Mesh = KpiMesh{
		Sent:          ctr.Sent,
		Delivered:     ctr.Delivered,
		LostLink:      ctr.LostLink,
		LostPlr:       ctr.LostPlr,
		NoRoute:       ctr.NoRoute,
		DroppedFull:   ctr.DroppedFull,
		ConfiguredPlr: km.sim.mesh.Plr(),
	}
	if ctr.Sent > 0 {
		km.data.Mesh.DeliveryPct = 100.0 * float64(ctr.Delivered) / float64(ctr.Sent)
	}
	if period > 0 {
		km.data.Mesh.AvgDps = float64(ctr.Sent) / period
	}

	// nodes
	km.data.Nodes = make(map[NodeId]*KpiNode, len(km.sim.nodes))
	for id, n := range km.sim.nodes {
		est := n.Liveness()
		kn := &KpiNode{
			Liveness: est.State(),
			Rtt:      est.Summary(),
			LossPct:  est.LossPct(),
		}
		if e, ok := km.sim.coordinator.Table().Get(id); ok {
			kn.TxCount = e.TxCount
			kn.RxCount = e.RxCount
			kn.Prr = e.Prr()
			kn.LastRssi = e.LastRssi
			kn.LatencyTicks = e.LastLatencyTicks
		}
		km.data.Nodes[id] = kn
	}
}

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

// Package nodestats keeps the coordinator's per-node reception statistics.
package nodestats

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/payload"
	. "github.com/openthread/ot-sink/types"
)

// Reception is the transport metadata of a received frame.
type Reception struct {
	Src  netip.Addr
	Rssi Rssi
	// ArrivalTicks is the coordinator's reading of the shared network clock, or 0 if the clock is not shared.
	ArrivalTicks Ticks
}

// Entry holds what the coordinator knows about one node.
type Entry struct {
	NodeId NodeId `json:"nodeId"`
	// TxCount is the sequence number of the last frame received. It is overwritten, so it drops after a node restart.
	TxCount       uint16     `json:"txCount"`
	RxCount       uint32     `json:"rxCount"`
	NodeAddress   netip.Addr `json:"nodeAddress"`
	ParentAddress netip.Addr `json:"parentAddress"`

	LastRssi          Rssi      `json:"lastRssi"`
	LastTemperature   int16     `json:"lastTemperature"`
	LastSendTimestamp Ticks     `json:"lastSendTimestamp"`
	LastLatencyTicks  Ticks     `json:"lastLatencyTicks"`
	HasLatency        bool      `json:"hasLatency"`
	LastSeen          time.Time `json:"lastSeen"`

	// Liveness counters as last reported by the node (extended frames only).
	PongReceivedCount uint16 `json:"pongReceivedCount"`
	PingSentCount     uint16 `json:"pingSentCount"`
	LastRttMs         uint16 `json:"lastRttMs"`
}

// Prr returns the packet reception ratio in whole percent, truncated. It is 0 before any
// sequence number was seen and exceeds 100 when a node restarted its sequence counter.
func (e *Entry) Prr() int {
	if e.TxCount == 0 {
		return 0
	}
	return int(uint64(e.RxCount) * 100 / uint64(e.TxCount))
}

// DisplayPrr returns Prr clamped to the range shown in reports.
func (e *Entry) DisplayPrr() int {
	prr := e.Prr()
	if prr > MaxDisplayPrr {
		return MaxDisplayPrr
	}
	return prr
}

// ViaRoot returns whether the node reported no parent, i.e. it is attached to the coordinator directly.
func (e *Entry) ViaRoot() bool {
	return !e.ParentAddress.IsValid() || e.ParentAddress.IsUnspecified()
}

// Row is one line of a table snapshot.
type Row struct {
	Entry
	Prr int `json:"prr"`
}

// Table is the registry of node entries, keyed by node id. Entries are created on the first valid
// frame and never removed.
type Table struct {
	mutex   sync.RWMutex
	domain  NodeDomain
	entries map[NodeId]*Entry
	now     func() time.Time
}

func NewTable(domain NodeDomain) *Table {
	return &Table{
		domain:  domain,
		entries: make(map[NodeId]*Entry, domain.Len()),
		now:     time.Now,
	}
}

func (t *Table) Domain() NodeDomain {
	return t.domain
}

// Record accounts one received frame and returns a copy of the updated entry.
// A node outside the domain is rejected with ErrInvalidNodeId and no entry is created.
func (t *Table) Record(f *payload.Frame, rx Reception) (Entry, error) {
	if !t.domain.Contains(f.NodeId) {
		return Entry{}, errors.Wrapf(ErrInvalidNodeId, "node %d", f.NodeId)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	e, ok := t.entries[f.NodeId]
	if !ok {
		e = &Entry{NodeId: f.NodeId}
		t.entries[f.NodeId] = e
	}

	e.TxCount = f.TxSequence
	e.RxCount++
	e.NodeAddress = rx.Src
	e.ParentAddress = f.ParentAddress
	e.LastRssi = rx.Rssi
	e.LastTemperature = f.Temperature
	e.LastSendTimestamp = f.SendTimestamp
	e.HasLatency = rx.ArrivalTicks != 0 && rx.ArrivalTicks >= f.SendTimestamp
	if e.HasLatency {
		e.LastLatencyTicks = rx.ArrivalTicks - f.SendTimestamp
	} else {
		e.LastLatencyTicks = 0
	}
	e.PongReceivedCount = f.PongReceivedCount
	e.PingSentCount = f.PingSentCount
	e.LastRttMs = f.LastRttMs
	e.LastSeen = t.now()
	return *e, nil
}

// Get returns a copy of the entry for id.
func (t *Table) Get(id NodeId) (Entry, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of entries created so far.
func (t *Table) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.entries)
}

// Snapshot returns copies of all entries that received at least one frame, in ascending node id order.
func (t *Table) Snapshot() []Row {
	t.mutex.RLock()
	rows := make([]Row, 0, len(t.entries))
	for _, e := range t.entries {
		if e.RxCount == 0 {
			continue
		}
		rows = append(rows, Row{Entry: *e, Prr: e.Prr()})
	}
	t.mutex.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].NodeId < rows[j].NodeId
	})
	return rows
}

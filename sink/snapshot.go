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
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/nodestats"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

// Snapshot is the coordinator's view of the sink tree at one dump.
type Snapshot struct {
	RunId       string          `json:"runId"`
	Time        time.Time       `json:"time"`
	Uptime      string          `json:"uptime"`
	Coordinator string          `json:"coordinator,omitempty"`
	Nodes       NodeList        `json:"nodes"`
	Rows        []nodestats.Row `json:"rows"`
}

// NodeList marshals as a JSON array of numbers rather than the base64 string used for byte slices.
type NodeList []NodeId

func (l NodeList) MarshalJSON() ([]byte, error) {
	ids := make([]int, len(l))
	for i, id := range l {
		ids[i] = int(id)
	}
	return json.Marshal(ids)
}

func (l *NodeList) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*l = make(NodeList, len(ids))
	for i, id := range ids {
		if id < 0 || id > 255 {
			return errors.Wrapf(ErrInvalidNodeId, "node id %d", id)
		}
		(*l)[i] = NodeId(id)
	}
	return nil
}

// RenderDump renders a snapshot as the lines of the periodic dump.
func RenderDump(s *Snapshot) []string {
	lines := make([]string, 0, len(s.Rows)+2)
	if s.Coordinator != "" {
		lines = append(lines, "Coordinator: "+s.Coordinator)
	} else {
		lines = append(lines, "Coordinator address unavailable.")
	}

	lines = append(lines, "Routing Table:")
	if len(s.Rows) == 0 {
		lines = append(lines, "  no node reports yet")
	}
	for i := range s.Rows {
		r := &s.Rows[i]
		lines = append(lines, fmt.Sprintf("Node ID %d [%s] via %s | TX: %d | RX: %d | PRR: %d%%", r.NodeId,
			r.NodeAddress, parentString(&r.Entry), r.TxCount, r.RxCount, r.DisplayPrr()))
	}
	return lines
}

func formatReception(e *nodestats.Entry, tps uint32) string {
	s := fmt.Sprintf("Node %d | TX: %d | RX: %d | PRR: %d%% | RSSI: %s | Temperature: %dC", e.NodeId, e.TxCount,
		e.RxCount, e.DisplayPrr(), rssiString(e.LastRssi), e.LastTemperature)
	if e.HasLatency {
		s += fmt.Sprintf(" | Latency: %d ms", uptime.TicksToMs(e.LastLatencyTicks, tps))
	}
	if e.PingSentCount > 0 {
		s += fmt.Sprintf(" | Ping: %d/%d RTT: %d ms", e.PongReceivedCount, e.PingSentCount, e.LastRttMs)
	}
	return s
}

func parentString(e *nodestats.Entry) string {
	if e.ViaRoot() {
		return "root"
	}
	return e.ParentAddress.String()
}

func rssiString(rssi Rssi) string {
	if rssi == RssiInvalid {
		return "n/a"
	}
	return fmt.Sprintf("%d", rssi)
}

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

// Package liveness implements the node-side ping/pong exchange with the coordinator.
package liveness

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

const (
	// MarkerLen is the length of the ping and pong markers.
	MarkerLen = 4

	// rttHistoryLen is the number of recent RTT samples kept for Summary.
	rttHistoryLen = 32
)

var (
	pingMarker = []byte("PING")
	pongMarker = []byte("PONG")
)

// PingMarker returns a fresh copy of the ping marker.
func PingMarker() []byte {
	return append([]byte(nil), pingMarker...)
}

// PongMarker returns a fresh copy of the pong marker.
func PongMarker() []byte {
	return append([]byte(nil), pongMarker...)
}

// IsPing returns whether data is exactly the ping marker.
func IsPing(data []byte) bool {
	return bytes.Equal(data, pingMarker)
}

// IsPong returns whether data is exactly the pong marker.
func IsPong(data []byte) bool {
	return bytes.Equal(data, pongMarker)
}

type Phase int

const (
	Idle Phase = iota
	AwaitingPong
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingPong:
		return "awaiting-pong"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a copy of the estimator's counters.
type State struct {
	Phase             Phase  `yaml:"phase"`
	PingSentCount     uint32 `yaml:"ping_sent"`
	PongReceivedCount uint32 `yaml:"pong_received"`
	LastPingSentAt    Ticks  `yaml:"last_ping_sent_at"`
	LastRttMs         uint16 `yaml:"last_rtt_ms"`
}

// LossPct returns the share of pings that got no pong, in percent. It is 100 before the first ping.
func (s State) LossPct() float64 {
	if s.PingSentCount == 0 {
		return 100
	}
	loss := (1 - float64(s.PongReceivedCount)/float64(s.PingSentCount)) * 100
	return math.Max(loss, 0)
}

// Summary describes the recent RTT samples in milliseconds.
type Summary struct {
	Count int     `yaml:"count"`
	Mean  float64 `yaml:"mean"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	P95   float64 `yaml:"p95"`
}

// Estimator tracks one outstanding ping at a time. A new ping silently supersedes an unanswered one.
type Estimator struct {
	mutex   sync.Mutex
	clock   uptime.Clock
	state   State
	samples []float64
	next    int
}

func NewEstimator(clock uptime.Clock) *Estimator {
	return &Estimator{
		clock:   clock,
		samples: make([]float64, 0, rttHistoryLen),
	}
}

// SendPing records a ping and returns the marker to send to the root.
func (e *Estimator) SendPing() []byte {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.state.PingSentCount++
	e.state.LastPingSentAt = e.clock.Now()
	e.state.Phase = AwaitingPong
	return PingMarker()
}

// OnPongReceived accounts a reply received at now. A reply that is not the pong marker fails with
// ErrMalformedLivenessReply and changes nothing.
//
// Only a pong in AwaitingPong counts. A pong arriving while Idle is taken as a duplicate or a late
// reply to a superseded ping and is not counted, so ping, ping, pong, pong reports 50% loss rather
// than 0%. This keeps PongReceivedCount from exceeding PingSentCount under duplication.
func (e *Estimator) OnPongReceived(data []byte, now Ticks) error {
	if !IsPong(data) {
		return errors.Wrapf(ErrMalformedLivenessReply, "%d bytes", len(data))
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state.Phase != AwaitingPong {
		return nil
	}

	var rtt uint64
	if now > e.state.LastPingSentAt {
		rtt = uptime.TicksToMs(now-e.state.LastPingSentAt, e.clock.TicksPerSecond())
	}
	if rtt > math.MaxUint16 {
		rtt = math.MaxUint16
	}

	e.state.PongReceivedCount++
	e.state.LastRttMs = uint16(rtt)
	e.state.Phase = Idle
	e.addSample(float64(rtt))
	return nil
}

func (e *Estimator) addSample(rtt float64) {
	if len(e.samples) < rttHistoryLen {
		e.samples = append(e.samples, rtt)
		return
	}
	e.samples[e.next] = rtt
	e.next = (e.next + 1) % rttHistoryLen
}

// State returns a copy of the current counters.
func (e *Estimator) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

// LossPct returns the current loss percentage.
func (e *Estimator) LossPct() float64 {
	return e.State().LossPct()
}

// Summary returns statistics over the most recent RTT samples.
func (e *Estimator) Summary() Summary {
	e.mutex.Lock()
	x := append([]float64(nil), e.samples...)
	e.mutex.Unlock()

	if len(x) == 0 {
		return Summary{}
	}
	sort.Float64s(x)
	return Summary{
		Count: len(x),
		Mean:  stat.Mean(x, nil),
		Min:   floats.Min(x),
		Max:   floats.Max(x),
		P95:   stat.Quantile(0.95, stat.Empirical, x, nil),
	}
}

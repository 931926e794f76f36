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

package liveness

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

func TestRtt(t *testing.T) {
	clock := uptime.NewManual(1000)
	clock.Set(5000)
	e := NewEstimator(clock)

	assert.Equal(t, []byte("PING"), e.SendPing())
	assert.Equal(t, AwaitingPong, e.State().Phase)

	assert.Nil(t, e.OnPongReceived([]byte("PONG"), 5050))
	s := e.State()
	assert.Equal(t, Idle, s.Phase)
	assert.Equal(t, uint16(50), s.LastRttMs)
	assert.Equal(t, uint32(1), s.PingSentCount)
	assert.Equal(t, uint32(1), s.PongReceivedCount)
	assert.Equal(t, 0.0, e.LossPct())
}

func TestRttTickRate(t *testing.T) {
	clock := uptime.NewManual(128)
	e := NewEstimator(clock)
	e.SendPing()
	assert.Nil(t, e.OnPongReceived(PongMarker(), 64))
	assert.Equal(t, uint16(500), e.State().LastRttMs)
}

func TestMismatchedMarker(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	e.SendPing()
	before := e.State()

	for _, reply := range [][]byte{[]byte("PONX"), []byte("PON"), []byte("PONGG"), nil, []byte("PING")} {
		err := e.OnPongReceived(reply, 10)
		assert.True(t, errors.Is(err, ErrMalformedLivenessReply))
	}
	assert.Equal(t, before, e.State())
}

func TestDuplicatePongIgnored(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	e.SendPing()
	assert.Nil(t, e.OnPongReceived(PongMarker(), 20))
	assert.Nil(t, e.OnPongReceived(PongMarker(), 90))
	s := e.State()
	assert.Equal(t, uint32(1), s.PongReceivedCount)
	assert.Equal(t, uint16(20), s.LastRttMs)
}

func TestLatePongWhileIdleNotCounted(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	e.SendPing()
	clock.Set(10)
	e.SendPing()
	assert.Nil(t, e.OnPongReceived(PongMarker(), 30))
	assert.Nil(t, e.OnPongReceived(PongMarker(), 40))

	s := e.State()
	assert.Equal(t, uint32(2), s.PingSentCount)
	assert.Equal(t, uint32(1), s.PongReceivedCount)
	assert.Equal(t, uint16(20), s.LastRttMs)
	assert.Equal(t, 50.0, e.LossPct())
}

func TestSupersededPing(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	e.SendPing()
	clock.Advance(1000)
	e.SendPing()
	clock.Advance(30)
	assert.Nil(t, e.OnPongReceived(PongMarker(), clock.Now()))
	s := e.State()
	assert.Equal(t, uint16(30), s.LastRttMs)
	assert.Equal(t, uint32(2), s.PingSentCount)
	assert.Equal(t, 50.0, s.LossPct())
}

func TestLossPct(t *testing.T) {
	assert.Equal(t, 100.0, State{}.LossPct())
	assert.Equal(t, 75.0, State{PingSentCount: 4, PongReceivedCount: 1}.LossPct())
	assert.Equal(t, 0.0, State{PingSentCount: 4, PongReceivedCount: 4}.LossPct())
}

func TestRttSaturates(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	e.SendPing()
	assert.Nil(t, e.OnPongReceived(PongMarker(), 100000))
	assert.Equal(t, uint16(65535), e.State().LastRttMs)
}

func TestSummary(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	assert.Equal(t, Summary{}, e.Summary())

	for _, rtt := range []Ticks{10, 20, 30, 40} {
		e.SendPing()
		assert.Nil(t, e.OnPongReceived(PongMarker(), clock.Now()+rtt))
	}
	s := e.Summary()
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 25.0, s.Mean)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 40.0, s.Max)
	assert.Equal(t, 40.0, s.P95)
}

func TestSummaryKeepsRecentSamples(t *testing.T) {
	clock := uptime.NewManual(1000)
	e := NewEstimator(clock)
	for i := 0; i < rttHistoryLen+8; i++ {
		e.SendPing()
		assert.Nil(t, e.OnPongReceived(PongMarker(), clock.Now()+Ticks(i)))
	}
	s := e.Summary()
	assert.Equal(t, rttHistoryLen, s.Count)
	assert.Equal(t, 8.0, s.Min)
}

func TestMarkers(t *testing.T) {
	assert.True(t, IsPing([]byte("PING")))
	assert.False(t, IsPing([]byte("PONG")))
	m := PingMarker()
	m[0] = 'X'
	assert.True(t, IsPing(PingMarker()))
}

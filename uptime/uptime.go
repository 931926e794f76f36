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

// Package uptime provides the network uptime clock the nodes stamp their frames with.
package uptime

import (
	"sync/atomic"
	"time"

	. "github.com/openthread/ot-sink/types"
)

// Clock is a monotonic tick source.
type Clock interface {
	Now() Ticks
	TicksPerSecond() uint32
}

// Monotonic counts ticks since its creation using the host monotonic clock.
type Monotonic struct {
	start time.Time
	tps   uint32
}

// NewMonotonic returns a clock running at tps ticks per second. A zero tps selects DefaultTicksPerSecond.
func NewMonotonic(tps uint32) *Monotonic {
	if tps == 0 {
		tps = DefaultTicksPerSecond
	}
	return &Monotonic{start: time.Now(), tps: tps}
}

func (c *Monotonic) Now() Ticks {
	return DurationToTicks(time.Since(c.start), c.tps)
}

func (c *Monotonic) TicksPerSecond() uint32 {
	return c.tps
}

// Manual is a clock that only moves when told to.
type Manual struct {
	ticks atomic.Uint64
	tps   uint32
}

func NewManual(tps uint32) *Manual {
	if tps == 0 {
		tps = DefaultTicksPerSecond
	}
	return &Manual{tps: tps}
}

func (c *Manual) Now() Ticks {
	return Ticks(c.ticks.Load())
}

func (c *Manual) TicksPerSecond() uint32 {
	return c.tps
}

// Advance moves the clock forward by n ticks.
func (c *Manual) Advance(n Ticks) {
	c.ticks.Add(uint64(n))
}

// Set sets the clock to t.
func (c *Manual) Set(t Ticks) {
	c.ticks.Store(uint64(t))
}

// TicksToMs converts a tick interval to milliseconds.
func TicksToMs(n Ticks, tps uint32) uint64 {
	if tps == 0 {
		tps = DefaultTicksPerSecond
	}
	return uint64(n)/uint64(tps)*1000 + uint64(n)%uint64(tps)*1000/uint64(tps)
}

// DurationToTicks converts a duration to ticks at tps ticks per second.
func DurationToTicks(d time.Duration, tps uint32) Ticks {
	if d <= 0 {
		return 0
	}
	sec := uint64(d / time.Second)
	rem := uint64(d % time.Second)
	return Ticks(sec*uint64(tps) + rem*uint64(tps)/uint64(time.Second))
}

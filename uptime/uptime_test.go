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

package uptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/openthread/ot-sink/types"
)

func TestTicksToMs(t *testing.T) {
	assert.Equal(t, uint64(50), TicksToMs(50, 1000))
	assert.Equal(t, uint64(390), TicksToMs(50, 128))
	assert.Equal(t, uint64(1000), TicksToMs(128, 128))
	assert.Equal(t, uint64(0), TicksToMs(0, 128))
	assert.Equal(t, uint64(7), TicksToMs(7, 0))
}

func TestDurationToTicks(t *testing.T) {
	assert.Equal(t, Ticks(1500), DurationToTicks(1500*time.Millisecond, 1000))
	assert.Equal(t, Ticks(128), DurationToTicks(time.Second, 128))
	assert.Equal(t, Ticks(0), DurationToTicks(-time.Second, 128))
}

func TestManual(t *testing.T) {
	c := NewManual(0)
	assert.Equal(t, uint32(DefaultTicksPerSecond), c.TicksPerSecond())
	assert.Equal(t, Ticks(0), c.Now())
	c.Advance(50)
	c.Advance(25)
	assert.Equal(t, Ticks(75), c.Now())
	c.Set(10)
	assert.Equal(t, Ticks(10), c.Now())
}

func TestMonotonicNonDecreasing(t *testing.T) {
	c := NewMonotonic(1000)
	a := c.Now()
	time.Sleep(5 * time.Millisecond)
	b := c.Now()
	assert.True(t, b >= a+4, "a=%d b=%d", a, b)
}

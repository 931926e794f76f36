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
	"time"

	"github.com/pkg/errors"

	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/prng"
	. "github.com/openthread/ot-sink/types"
	"github.com/openthread/ot-sink/uptime"
)

// failureTick is how often failure controllers look at the clock.
const failureTick = 10 * time.Millisecond

// FailTime makes a node fail for FailDuration, at a random moment within every FailInterval.
type FailTime struct {
	FailDuration time.Duration
	FailInterval time.Duration
}

var (
	NonFailTime = FailTime{0, 0}
)

func (ft FailTime) CanFail() bool {
	return ft.FailDuration > 0
}

func (ft FailTime) Validate() error {
	if ft.FailDuration < 0 || (ft.CanFail() && ft.FailInterval <= ft.FailDuration) {
		return errors.Errorf("invalid fail time: duration %v must be below interval %v", ft.FailDuration,
			ft.FailInterval)
	}
	return nil
}

type failOwner interface {
	IsFailed() bool
	Fail()
	Recover()
}

type failureCtrl struct {
	owner     failOwner
	failTime  FailTime
	rnd       *prng.Source
	recoverTs Ticks // when recovery starts, valid while failed
	failTs    Ticks // when failure starts, valid while not failed
	remainTm  Ticks // what remains of the current fail cycle after the failure ended
	tps       uint32
}

func newFailureCtrl(owner failOwner, failTime FailTime, rnd *prng.Source, tps uint32) *failureCtrl {
	return &failureCtrl{
		owner:    owner,
		failTime: failTime,
		rnd:      rnd,
		tps:      tps,
	}
}

func (fc *failureCtrl) ticks(d time.Duration) Ticks {
	return uptime.DurationToTicks(d, fc.tps)
}

func (fc *failureCtrl) SetFailTime(failTime FailTime, now Ticks) {
	fc.failTime = failTime

	fc.recoverTs = 0
	fc.failTs = 0
	fc.remainTm = 0
	if !failTime.CanFail() && fc.owner.IsFailed() {
		fc.owner.Recover()
	}
	fc.calcNextFailTimestamp(now)
}

// OnTimeAdvanced fails or recovers the owner as due at time now.
func (fc *failureCtrl) OnTimeAdvanced(now Ticks) {
	if !fc.failTime.CanFail() {
		return
	}

	if fc.owner.IsFailed() {
		if fc.recoverTs == 0 {
			// failed from the outside: start a new cycle after this failure
			fc.recoverTs = now + fc.ticks(fc.failTime.FailDuration)
			fc.failTs = 0
		}
		if now >= fc.recoverTs {
			fc.recoverTs = 0
			fc.calcNextFailTimestamp(now)
			fc.owner.Recover()
		}
		return
	}

	if fc.failTs == 0 {
		fc.recoverTs = 0
		fc.calcNextFailTimestamp(now)
	}
	if now >= fc.failTs {
		fc.recoverTs = now + fc.ticks(fc.failTime.FailDuration)
		fc.failTs = 0
		fc.owner.Fail()
	}
}

func (fc *failureCtrl) calcNextFailTimestamp(now Ticks) {
	if !fc.failTime.CanFail() {
		return
	}
	logger.AssertTrue(fc.failTime.FailInterval > fc.failTime.FailDuration)
	failStartTimeMax := fc.ticks(fc.failTime.FailInterval - fc.failTime.FailDuration)
	var failTsRel Ticks
	if failStartTimeMax > 0 {
		failTsRel = Ticks(fc.rnd.Int63n(int64(failStartTimeMax)))
	}
	fc.failTs = failTsRel + now + fc.remainTm
	if fc.failTs == 0 {
		fc.failTs = 1
	}
	fc.remainTm = failStartTimeMax - failTsRel
}

// simNodeFailer fails a simulated node by muting its radio links.
type simNodeFailer struct {
	links *radioLinks
	id    NodeId
}

func (f simNodeFailer) IsFailed() bool {
	return f.links.isFailed(f.id)
}

func (f simNodeFailer) Fail() {
	logger.GetNodeLogger(f.id).Debugf("radio failed")
	f.links.setFailed(f.id, true)
}

func (f simNodeFailer) Recover() {
	logger.GetNodeLogger(f.id).Debugf("radio recovered")
	f.links.setFailed(f.id, false)
}

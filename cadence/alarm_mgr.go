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

package cadence

import (
	"container/heap"
	"time"

	"github.com/openthread/ot-sink/logger"
)

type alarmEvent struct {
	Name     string
	Interval time.Duration
	Next     time.Time // time of next firing
	Fn       func()

	index int
}

type alarmQueue []*alarmEvent

func (aq alarmQueue) Len() int {
	return len(aq)
}

func (aq alarmQueue) Less(i, j int) bool {
	return aq[i].Next.Before(aq[j].Next)
}

func (aq alarmQueue) Swap(i, j int) {
	a, b := aq[i], aq[j]
	if a.index != i && b.index != j {
		logger.Panicf("wrong index")
	}

	aq[i], aq[j] = b, a             // swap the elements
	aq[i].index, aq[j].index = i, j // fix the indexes
}

func (aq *alarmQueue) Push(x interface{}) {
	e := x.(*alarmEvent)
	*aq = append(*aq, e)
	e.index = len(*aq) - 1
}

func (aq *alarmQueue) Pop() (elem interface{}) {
	eqlen := len(*aq)
	elem = (*aq)[eqlen-1]
	*aq = (*aq)[:eqlen-1]
	return
}

type alarmMgr struct {
	q      alarmQueue
	events map[string]*alarmEvent
}

func newAlarmMgr() *alarmMgr {
	mgr := &alarmMgr{
		q:      alarmQueue{},
		events: map[string]*alarmEvent{},
	}

	heap.Init(&mgr.q)
	return mgr
}

func (am *alarmMgr) Add(name string, interval time.Duration, first time.Time, fn func()) {
	logger.AssertTrue(interval > 0, "interval of %s must be positive", name)
	if e, ok := am.events[name]; ok {
		heap.Remove(&am.q, e.index)
	}

	e := &alarmEvent{
		Name:     name,
		Interval: interval,
		Next:     first,
		Fn:       fn,
	}
	heap.Push(&am.q, e)
	am.events[name] = e
}

func (am *alarmMgr) Remove(name string) bool {
	e, ok := am.events[name]
	if !ok {
		return false
	}
	heap.Remove(&am.q, e.index)
	delete(am.events, name)
	return true
}

func (am *alarmMgr) NextAlarm() *alarmEvent {
	if len(am.q) == 0 {
		return nil
	}

	return am.q[0]
}

// Reschedule moves e past now and returns the number of ticks that were skipped.
func (am *alarmMgr) Reschedule(e *alarmEvent, now time.Time) int {
	next, skipped := nextFire(e.Next, e.Interval, now)
	e.Next = next
	heap.Fix(&am.q, e.index)
	return skipped
}

func (am *alarmMgr) Len() int {
	return len(am.q)
}

// nextFire returns the first tick after now on the grid prev + k*interval, and how many
// grid ticks between prev and now were skipped.
func nextFire(prev time.Time, interval time.Duration, now time.Time) (time.Time, int) {
	next := prev.Add(interval)
	if next.After(now) {
		return next, 0
	}
	missed := int(now.Sub(prev) / interval)
	return prev.Add(time.Duration(missed+1) * interval), missed
}

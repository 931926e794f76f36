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

// Package cadence runs a participant's periodic tasks and inbound work on a single goroutine.
//
// Periodic tasks keep their phase: when a handler overruns, the ticks it missed are skipped
// rather than queued.
package cadence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openthread/ot-sink/logger"
)

const DefaultQueueLen = 256

// Counters count what the loop did.
type Counters struct {
	TasksRun     uint64
	TasksDropped uint64
	TicksFired   uint64
	TicksSkipped uint64
	HandlerPanic uint64
}

// Loop serializes periodic tasks and posted tasks.
type Loop struct {
	name     string
	taskChan chan func()
	done     chan struct{}
	now      func() time.Time

	mutex   sync.Mutex // guards alarms until Run starts
	alarms  *alarmMgr
	running bool

	tasksRun     atomic.Uint64
	tasksDropped atomic.Uint64
	ticksFired   atomic.Uint64
	ticksSkipped atomic.Uint64
	handlerPanic atomic.Uint64
}

// NewLoop creates a loop with a task queue of queueLen entries (DefaultQueueLen if 0).
func NewLoop(name string, queueLen int) *Loop {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Loop{
		name:     name,
		taskChan: make(chan func(), queueLen),
		done:     make(chan struct{}),
		now:      time.Now,
		alarms:   newAlarmMgr(),
	}
}

func (l *Loop) Name() string {
	return l.name
}

// Every schedules fn every interval, first firing one interval from now. Registering a name twice
// replaces the earlier task.
func (l *Loop) Every(name string, interval time.Duration, fn func()) {
	l.onLoop(func() {
		l.alarms.Add(name, interval, l.now().Add(interval), fn)
	})
}

// Cancel removes a periodic task.
func (l *Loop) Cancel(name string) {
	l.onLoop(func() {
		l.alarms.Remove(name)
	})
}

// onLoop runs f directly before Run started, and as a posted task afterwards.
func (l *Loop) onLoop(f func()) {
	l.mutex.Lock()
	if l.running {
		l.mutex.Unlock()
		l.Post(f)
		return
	}
	defer l.mutex.Unlock()
	f()
}

// Post queues f to run on the loop. It blocks while the queue is full and returns false
// once the loop has exited.
func (l *Loop) Post(f func()) bool {
	if l.exited() {
		return false
	}
	select {
	case l.taskChan <- f:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues f if there is room and drops it otherwise.
func (l *Loop) TryPost(f func()) bool {
	if l.exited() {
		return false
	}
	select {
	case l.taskChan <- f:
		return true
	default:
		l.tasksDropped.Add(1)
		return false
	}
}

// exited is checked before sending, since a select with room in the queue
// would otherwise pick the send or the done case at random.
func (l *Loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Counters returns a copy of the loop counters.
func (l *Loop) Counters() Counters {
	return Counters{
		TasksRun:     l.tasksRun.Load(),
		TasksDropped: l.tasksDropped.Load(),
		TicksFired:   l.ticksFired.Load(),
		TicksSkipped: l.ticksSkipped.Load(),
		HandlerPanic: l.handlerPanic.Load(),
	}
}

// Run processes tasks and alarms until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	l.mutex.Lock()
	l.running = true
	l.mutex.Unlock()

	defer close(l.done)
	defer logger.Debugf("%s loop exit.", l.name)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	done := ctx.Done()
	for {
		var wake <-chan time.Time
		if next := l.alarms.NextAlarm(); next != nil {
			timer.Reset(max(next.Next.Sub(l.now()), 0))
			wake = timer.C
		} else {
			timer.Stop()
		}

		select {
		case f := <-l.taskChan:
			l.runHandler(f)
			l.tasksRun.Add(1)
		case <-wake:
			l.fireDue()
		case <-done:
			return
		}
	}
}

func (l *Loop) fireDue() {
	for {
		e := l.alarms.NextAlarm()
		if e == nil || e.Next.After(l.now()) {
			return
		}

		l.ticksFired.Add(1)
		l.runHandler(e.Fn)

		// the handler may have overrun; ticks that passed meanwhile are skipped.
		if skipped := l.alarms.Reschedule(e, l.now()); skipped > 0 {
			l.ticksSkipped.Add(uint64(skipped))
			logger.Debugf("%s: %s skipped %d ticks", l.name, e.Name, skipped)
		}
	}
}

func (l *Loop) runHandler(f func()) {
	defer func() {
		if err := recover(); err != nil {
			l.handlerPanic.Add(1)
			logger.Errorf("%s handle task failed: %+v", l.name, err)
		}
	}()
	f()
}

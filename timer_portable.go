// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

//go:build !linux

package longhorn

import (
	"sync"
	"time"
)

// monoTime wraps time.Time rather than a raw duration so that Go's
// runtime-maintained monotonic clock reading (carried inside time.Time
// since Go 1.9) governs comparisons, the portable equivalent of the
// Linux build's CLOCK_MONOTONIC timestamps.
type monoTime struct {
	t time.Time
}

func nowMono() monoTime { return monoTime{time.Now()} }

func (t monoTime) add(d monoDuration) monoTime { return monoTime{t.t.Add(d)} }
func (t monoTime) before(u monoTime) bool      { return t.t.Before(u.t) }

// heapTimer is the min-heap-checked-by-a-dedicated-thread alternative
// the spec's timer Design Note allows: since there is only ever one
// outstanding deadline to track (the registry head's), a bare deadline
// behind a mutex stands in for the heap.
//
// arm/disarm only ever touch this mutex-guarded state and a
// best-effort wake-up nudge; they never rendezvous with wait() itself,
// so they are safe to call from the timer worker's own goroutine (the
// registry calls back into rearmLocked from inside drainExpired, which
// runs on the worker) as well as from any caller goroutine (insert,
// take). wait() is the only goroutine that ever creates or reads a
// time.Timer, so there is no concurrent Reset/Stop of the same timer.
type heapTimer struct {
	mu       sync.Mutex
	armed    bool
	deadline monoTime

	wake chan struct{} // capacity 1, nudges a blocked wait() to recheck state
	stop chan struct{}
}

func newPlatformTimer() (timerEngine, error) {
	return &heapTimer{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}, nil
}

func (t *heapTimer) arm(deadline monoTime) {
	t.mu.Lock()
	t.armed = true
	t.deadline = deadline
	t.mu.Unlock()
	t.nudge()
}

func (t *heapTimer) disarm() {
	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
	t.nudge()
}

func (t *heapTimer) nudge() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// wait blocks until the currently armed deadline fires (true) or the
// engine is closed (false), re-checking the armed/deadline state every
// time arm/disarm nudges it. Safe to call only from the single
// dedicated timer worker, per the timerEngine contract.
func (t *heapTimer) wait() bool {
	for {
		t.mu.Lock()
		armed := t.armed
		deadline := t.deadline
		t.mu.Unlock()

		if !armed {
			select {
			case <-t.wake:
				continue
			case <-t.stop:
				return false
			}
		}

		d := time.Until(deadline.t)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			return true
		case <-t.wake:
			timer.Stop()
			continue
		case <-t.stop:
			timer.Stop()
			return false
		}
	}
}

func (t *heapTimer) close() error {
	close(t.stop)
	return nil
}

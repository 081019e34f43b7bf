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

package longhorn

import (
	"time"

	"github.com/rancher/liblonghorn/internal/logging"
)

// monoDuration is a plain alias for time.Duration; deadlines are always
// expressed as "period after now" and durations don't need a
// platform-specific representation the way an absolute monotonic
// timestamp does.
type monoDuration = time.Duration

// timerEngine is the shared-deadline timer the spec calls for: a single
// handle armed for the registry head's deadline, disarmed when the
// registry is empty. Two implementations satisfy it — timer_linux.go's
// real timerfd and timer_portable.go's time.Timer-backed fallback —
// chosen by the Design Notes' "both satisfy the contract so long as the
// head's deadline governs wakeups".
type timerEngine interface {
	// arm programs the timer to fire at the given absolute monotonic
	// deadline, replacing any previously armed deadline.
	arm(deadline monoTime)

	// disarm cancels any pending firing. A no-op if already disarmed.
	disarm()

	// wait blocks until the timer fires, returning true, or until the
	// engine is closed, returning false. Safe to call only from the
	// single dedicated timer worker.
	wait() bool

	// close releases the timer's OS resources and unblocks a pending
	// wait with a false return.
	close() error
}

// runTimerWorker is the timer thread role from the spec's concurrency
// model: block on timer-readiness, then under the registry mutex drain
// every request whose deadline has passed, fail each with ErrTimeout,
// and re-arm from the new head. Returns when the engine is closed.
func runTimerWorker(reg *registry, engine timerEngine) {
	for engine.wait() {
		expired := reg.drainExpired(nowMono())
		for _, req := range expired {
			logging.Warnf("timeout request seq=%d", req.seq)
			req.complete(outcomeError, ErrTimeout)
		}
	}
}

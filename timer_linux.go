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

//go:build linux

package longhorn

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/rancher/liblonghorn/internal/logging"
)

// monoTime is an absolute CLOCK_MONOTONIC timestamp in nanoseconds, the
// same clock domain timerfd_settime's TFD_TIMER_ABSTIME expects. This
// mirrors the original C client, which arms its timerfd with
// clock_gettime(CLOCK_MONOTONIC, ...) plus request_timeout_period.
type monoTime int64

func nowMono() monoTime {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC cannot fail on a conforming Linux kernel; a
		// failure here means something is badly wrong with the host.
		logging.Errorf("clock_gettime(CLOCK_MONOTONIC) failed: %v", err)
		return 0
	}
	return monoTime(ts.Nano())
}

func (t monoTime) add(d monoDuration) monoTime { return t + monoTime(d) }
func (t monoTime) before(u monoTime) bool      { return t < u }

func (t monoTime) toTimespec() unix.Timespec {
	return unix.NsecToTimespec(int64(t))
}

// fdTimer is a timerEngine backed by a real Linux timerfd, armed in
// absolute CLOCK_MONOTONIC mode exactly as
// original_source/src/longhorn_rpc_client.c's update_timeout_timer and
// timeout_handler do. A second fd, wakeFd, is an eventfd added to the
// same pollset purely to unblock a pending poll(2) on close: unlike the
// original, which force-cancels its timer thread with pthread_cancel
// before joining it, this has nothing to cancel a blocked goroutine
// with, and closing a fd out from under a concurrent poll(2) is
// unspecified (see poll(2), BUGS) and not something to depend on.
type fdTimer struct {
	fd     int
	wakeFd int
}

func newPlatformTimer() (timerEngine, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "timerfd_create")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "eventfd")
	}
	return &fdTimer{fd: fd, wakeFd: wakeFd}, nil
}

func (t *fdTimer) arm(deadline monoTime) {
	spec := &unix.ItimerSpec{
		Value:    deadline.toTimespec(),
		Interval: unix.Timespec{},
	}
	if err := unix.TimerfdSettime(t.fd, unix.TFD_TIMER_ABSTIME, spec, nil); err != nil {
		logging.Errorf("BUG: timerfd_settime (arm) failed: %v", err)
	}
}

func (t *fdTimer) disarm() {
	spec := &unix.ItimerSpec{}
	if err := unix.TimerfdSettime(t.fd, unix.TFD_TIMER_ABSTIME, spec, nil); err != nil {
		logging.Errorf("BUG: timerfd_settime (disarm) failed: %v", err)
	}
}

// wait polls both the timerfd and wakeFd for readability, exactly as
// timeout_handler's poll(fds, 1, -1) loop does but over two descriptors
// instead of one. wakeFd going readable means close() posted to it, so
// the engine is torn down regardless of what timerfd says.
func (t *fdTimer) wait() bool {
	for {
		pfd := []unix.PollFd{
			{Fd: int32(t.fd), Events: unix.POLLIN},
			{Fd: int32(t.wakeFd), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false
		}
		if n == 0 {
			continue
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return false
		}
		if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return false
		}
		if pfd[0].Revents&unix.POLLIN == 0 {
			continue
		}

		var buf [8]byte
		_, err = unix.Read(t.fd, buf[:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return false
		}
		return true
	}
}

// close posts to wakeFd to unblock a pending wait() before releasing
// both descriptors.
func (t *fdTimer) close() error {
	one := [8]byte{1}
	unix.Write(t.wakeFd, one[:])
	err := unix.Close(t.fd)
	unix.Close(t.wakeFd)
	return err
}

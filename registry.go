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

import "sync"

// registry is the connection-scoped in-flight request table: a
// seq-keyed index plus a FIFO queue ordered by submission time, so the
// queue head always carries the earliest deadline (deadlines are
// assigned at insert time with a constant period). Guarded by one
// mutex for all four operations, matching the spec's invariant that a
// request is in the queue iff it is in the index, and that no entry
// exists with a non-pending result.
//
// Lock order: registry.mu is always acquired before anything the timer
// engine itself locks (it re-arms/disarms while mu is already held),
// and is never held while a request's own completion path runs.
type registry struct {
	mu      sync.Mutex
	index   map[uint32]*request
	headReq *request // queue head (earliest deadline), nil if empty
	tailReq *request
	timer   timerEngine
	period  monoDuration
}

func newRegistry(timer timerEngine, period monoDuration) *registry {
	return &registry{
		index:  make(map[uint32]*request),
		timer:  timer,
		period: period,
	}
}

// insert assigns req's deadline, appends it to the queue tail, and
// indexes it by seq. If req becomes the new head (the queue was
// empty), the timer is re-armed for req's deadline.
func (r *registry) insert(req *request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req.deadline = nowMono().add(r.period)
	r.index[req.seq] = req

	req.prev = r.tailReq
	req.next = nil
	if r.tailReq != nil {
		r.tailReq.next = req
	}
	r.tailReq = req
	if r.headReq == nil {
		r.headReq = req
	}

	if r.headReq == req {
		r.timer.arm(req.deadline)
	}
}

// unlink removes req from the queue's linked list. Caller must hold mu.
func (r *registry) unlink(req *request) {
	if req.prev != nil {
		req.prev.next = req.next
	} else {
		r.headReq = req.next
	}
	if req.next != nil {
		req.next.prev = req.prev
	} else {
		r.tailReq = req.prev
	}
	req.prev, req.next = nil, nil
}

// rearmLocked re-arms or disarms the timer based on the current head.
// Caller must hold mu.
func (r *registry) rearmLocked() {
	if r.headReq == nil {
		r.timer.disarm()
		return
	}
	r.timer.arm(r.headReq.deadline)
}

// take finds and removes the request registered under seq, returning
// nil if none is registered (already completed by a response, a
// timeout, or a close drain). Re-arms the timer from the new head.
func (r *registry) take(seq uint32) *request {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.index[seq]
	if !ok {
		return nil
	}
	wasHead := req == r.headReq
	delete(r.index, seq)
	r.unlink(req)
	if wasHead {
		r.rearmLocked()
	}
	return req
}

// drainExpired removes and returns every request whose deadline has
// passed as of now, starting from the queue head (deadline order), and
// re-arms the timer from the new head.
func (r *registry) drainExpired(now monoTime) []*request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*request
	for r.headReq != nil && !now.before(r.headReq.deadline) {
		req := r.headReq
		delete(r.index, req.seq)
		r.unlink(req)
		expired = append(expired, req)
	}
	r.rearmLocked()
	return expired
}

// drainAll removes and returns every registered request, disarming the
// timer. Used during Close.
func (r *registry) drainAll() []*request {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*request, 0, len(r.index))
	for req := r.headReq; req != nil; req = req.next {
		all = append(all, req)
	}
	r.index = make(map[uint32]*request)
	r.headReq, r.tailReq = nil, nil
	r.timer.disarm()
	return all
}

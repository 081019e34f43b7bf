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

// outcome is a request's terminal result, set exactly once by whichever
// goroutine wins the race to remove it from the registry: the
// dispatcher (on a matching response), the timer (on expiry), or Close
// (on drainAll). When submit removes the request itself after a failed
// send, no outcome is set and submit returns the send error directly.
type outcome int

const (
	outcomePending outcome = iota
	outcomeCompleted
	outcomeError
	outcomeEOF
)

// request is one in-flight ReadAt/WriteAt/Unmap call. It is allocated by
// the submitting goroutine, registered under its seq, and lives until
// submit returns — which is guaranteed to be after it has been removed
// from the registry by exactly one of dispatch, the timer, Close, or
// submit itself when the send fails.
//
// done is closed exactly once, by whichever goroutine sets result; the
// submitter blocks on <-done. This is the channel equivalent of the
// original's per-request mutex+condition variable (spec Design Notes,
// "completion primitive").
type request struct {
	seq    uint32
	typ    kind
	offset int64
	size   uint32
	data   []byte // write source or read destination, caller-owned

	deadline monoTime // assigned by registry.insert

	done    chan struct{}
	result  outcome
	failure error // set when result == outcomeError

	// queue/index linkage, owned exclusively by the registry mutex
	next, prev *request
}

func newRequest(seq uint32, typ kind, offset int64, size uint32, data []byte) *request {
	return &request{
		seq:    seq,
		typ:    typ,
		offset: offset,
		size:   size,
		data:   data,
		done:   make(chan struct{}),
	}
}

// complete transitions the request to a terminal outcome and wakes the
// submitter. Must only be called by the goroutine that removed req from
// the registry (take/drainExpired/drainAll), and at most once.
func (r *request) complete(o outcome, err error) {
	r.result = o
	r.failure = err
	close(r.done)
}

// frameForSubmit builds the wire frame for this request's initial
// client->server send.
func (r *request) frameForSubmit() *frame {
	f := &frame{
		seq:    r.seq,
		typ:    r.typ,
		offset: r.offset,
		size:   r.size,
	}
	if r.typ == kindWrite {
		f.dataLength = r.size
		f.data = r.data
	}
	return f
}

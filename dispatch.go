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
	"io"

	"github.com/pkg/errors"

	"github.com/rancher/liblonghorn/internal/logging"
)

// runDispatcher is the response dispatcher: the single reader goroutine
// role from the spec's concurrency model. It owns recvFrame exclusively
// (no other goroutine ever reads the socket), so it needs no locking of
// its own; correlation and completion go through the registry, which
// does its own locking.
//
// On I/O error, EOF, or a Close frame from the peer, it tears down the
// connection and returns. An unexpected response kind or an unknown
// sequence is logged and dropped without affecting any other request,
// per spec.md §4.4 step 3/4.
func runDispatcher(c *Connection) {
	for {
		f, err := recvFrame(c.conn)
		if err != nil {
			cause := errors.Wrap(ErrIO, err.Error())
			switch {
			case errors.Is(err, ErrProtocol):
				logging.Errorf("dispatcher: protocol error, closing connection: %v", err)
				cause = err
			case errors.Is(err, io.EOF):
				logging.Debugf("dispatcher: peer closed connection")
				cause = ErrClosed
			default:
				logging.Errorf("dispatcher: recvFrame failed, closing connection: %v", err)
			}
			c.closeWithCause(cause)
			return
		}

		switch f.typ {
		case kindClose:
			logging.Debugf("dispatcher: received Close frame, tearing down")
			putBuffer(f.data)
			c.closeWithCause(ErrClosed)
			return

		case kindRead, kindWrite, kindUnmap:
			// Request kinds echoed back by a misbehaving peer: log and
			// drop, never wake anyone.
			logging.Warnf("dispatcher: dropping request-kind frame %s echoed as a response (seq=%d)", f.typ, f.seq)
			putBuffer(f.data)

		case kindResponse, kindEOF, kindError:
			req := c.reg.take(f.seq)
			if req == nil {
				logging.Warnf("dispatcher: no registered request for seq=%d (already completed)", f.seq)
				putBuffer(f.data)
				continue
			}
			completeFromFrame(req, f)

		default:
			logging.Warnf("dispatcher: unknown response kind %d (seq=%d)", f.typ, f.seq)
			putBuffer(f.data)
		}
	}
}

// completeFromFrame applies a matched response frame to its request:
// copying payload into the caller's buffer on Response/EOF, or marking
// the request as failed on Error — never both. The dispatcher-owned
// frame payload is always released back to the pool once copied.
func completeFromFrame(req *request, f *frame) {
	switch f.typ {
	case kindResponse, kindEOF:
		if f.dataLength > 0 {
			copy(req.data, f.data[:f.dataLength])
		}
		putBuffer(f.data)
		if f.typ == kindEOF {
			req.complete(outcomeEOF, nil)
		} else {
			req.complete(outcomeCompleted, nil)
		}
	case kindError:
		putBuffer(f.data)
		req.complete(outcomeError, errors.Wrap(ErrIO, "peer returned an error response"))
	}
}

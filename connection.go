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

// Package longhorn implements the client-side core of a block-device
// RPC library that drives a remote storage replica over a local UNIX
// domain stream socket: blocking, thread-safe ReadAt/WriteAt/Unmap
// primitives multiplexed over a single duplex connection, bounded by a
// single shared deadline timer.
package longhorn

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/rancher/liblonghorn/internal/logging"
)

// maxSocketPathLen matches the UNIX domain socket sun_path limit on
// Linux (108 bytes, including the terminating NUL the kernel appends).
const maxSocketPathLen = 108

// Connection is a single open duplex link to a remote replica. It owns
// the request registry, the writer-serialization mutex, and the
// dispatcher and timer worker goroutines. It is safe for concurrent use
// by any number of goroutines calling ReadAt/WriteAt/Unmap, and
// transitions open->closed exactly once: by an explicit Close, by the
// dispatcher on reader EOF/error, or by receipt of a Close frame. It
// never reopens.
//
// Lock order (never taken in the other direction): registry.mu, then a
// request's own completion path, then writeMu. Teardown
// (closeWithCause) takes registry.mu itself, through drainAll, and is
// never entered while registry.mu is held.
type Connection struct {
	conn  net.Conn
	reg   *registry
	timer timerEngine

	seq uint32 // atomic, monotonically increasing per-connection

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	wg sync.WaitGroup

	requestTimeout time.Duration
}

// Open connects to the replica listening on socketPath, retrying with a
// fixed sleep on failure, and starts the background dispatcher and
// timer workers. On any failure it returns a non-nil error and no
// connection.
func Open(socketPath string, opts ...Option) (*Connection, error) {
	if len(socketPath) >= maxSocketPathLen {
		return nil, errors.Wrapf(ErrInvalidArgument, "socket path %q is %d bytes, must be < %d", socketPath, len(socketPath), maxSocketPathLen)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	conn, err := dialWithRetry(socketPath, cfg.retryCount, cfg.retryInterval)
	if err != nil {
		return nil, err
	}

	timer, err := newPlatformTimer()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "create timer")
	}

	c := &Connection{
		conn:           conn,
		timer:          timer,
		closed:         make(chan struct{}),
		requestTimeout: cfg.requestTimeout,
	}
	c.reg = newRegistry(timer, cfg.requestTimeout)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		runDispatcher(c)
	}()
	go func() {
		defer c.wg.Done()
		runTimerWorker(c.reg, c.timer)
	}()

	return c, nil
}

// dialWithRetry attempts to connect up to retryCount times, sleeping
// retryInterval between failed attempts, matching the original's fixed
// retry-with-sleep policy (reconnection after the resulting connection
// is lost is explicitly out of scope; this retry loop only covers the
// initial dial).
func dialWithRetry(socketPath string, retryCount int, retryInterval time.Duration) (net.Conn, error) {
	if retryCount < 1 {
		retryCount = 1
	}
	var lastErr error
	for attempt := 0; attempt < retryCount; attempt++ {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logging.Warnf("cannot connect to %s, retrying: %v", socketPath, err)
		if attempt < retryCount-1 {
			time.Sleep(retryInterval)
		}
	}
	return nil, errors.Wrapf(ErrConnectFailed, "after %d attempts: %v", retryCount, lastErr)
}

// IsClosed reports whether the connection has already torn down,
// whether by explicit Close, peer close, or a fatal I/O error.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close tears the connection down: it is idempotent, calling it twice
// produces one teardown and no double free. Closing the socket
// unblocks the dispatcher (its pending read fails); closing the timer posts an
// explicit wakeup to the timer worker's wait, rather than relying on
// closing its fd to interrupt a blocked poll. Every request still
// registered is failed with ErrClosed; both workers are then joined
// before Close returns.
func (c *Connection) Close() error {
	c.closeWithCause(ErrClosed)
	c.wg.Wait()
	return nil
}

// closeWithCause performs the once-only teardown, regardless of which
// goroutine triggers it (explicit Close, dispatcher EOF/error, or a
// peer Close frame). It does not itself wait for the workers to exit;
// only the public Close call does that, so a worker can trigger
// teardown from inside its own loop without joining itself.
func (c *Connection) closeWithCause(cause error) error {
	c.closeOnce.Do(func() {
		logging.Debugf("closing connection: %v", cause)
		c.closeErr = cause
		c.conn.Close()
		c.timer.close()

		for _, req := range c.reg.drainAll() {
			logging.Warnf("cancel request seq=%d due to disconnection", req.seq)
			req.complete(outcomeError, ErrClosed)
		}
		close(c.closed)
	})
	return c.closeErr
}

// submit is the blocking caller contract shared by ReadAt, WriteAt, and
// Unmap: register, send, wait for the registry/timer/close race to
// complete the request exactly once, and translate the outcome.
func (c *Connection) submit(buf []byte, offset int64, size uint32, typ kind) error {
	if c == nil {
		return errors.Wrap(ErrInvalidArgument, "nil connection")
	}
	switch typ {
	case kindRead, kindWrite, kindUnmap:
	default:
		return errors.Wrapf(ErrInvalidArgument, "unrecognized request kind %s", typ)
	}
	if c.IsClosed() {
		return ErrClosed
	}

	seq := atomic.AddUint32(&c.seq, 1) - 1
	req := newRequest(seq, typ, offset, size, buf)
	c.reg.insert(req)

	c.writeMu.Lock()
	err := sendFrame(c.conn, req.frameForSubmit())
	c.writeMu.Unlock()
	if err != nil {
		// The request may already have been taken by the dispatcher or
		// timer in a vanishingly narrow race; take() is a no-op then.
		c.reg.take(req.seq)
		return errors.Wrap(ErrIO, err.Error())
	}

	<-req.done

	switch req.result {
	case outcomeCompleted, outcomeEOF:
		return nil
	default:
		return req.failure
	}
}

// ReadAt blocks until the replica's response for a read at offset has
// been copied into buf, or until the request fails or times out.
// len(buf) is the requested length; a response carrying fewer bytes
// fills only the front of buf.
func (c *Connection) ReadAt(buf []byte, offset int64) error {
	return c.submit(buf, offset, uint32(len(buf)), kindRead)
}

// WriteAt blocks until buf has been written to the remote volume at
// offset, or until the request fails or times out.
func (c *Connection) WriteAt(buf []byte, offset int64) error {
	return c.submit(buf, offset, uint32(len(buf)), kindWrite)
}

// Unmap blocks until a length-byte region at offset has been
// deallocated on the remote volume, or until the request fails or
// times out.
func (c *Connection) Unmap(length uint32, offset int64) error {
	return c.submit(nil, offset, length, kindUnmap)
}

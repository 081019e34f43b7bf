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
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// mockPeer scripts a server-side UNIX socket peer the way
// socket515-gaio/aio_test.go's echoServer scripts a TCP echo server: a
// background goroutine accepts one connection and lets the test drive
// it directly with sendFrame/recvFrame.
type mockPeer struct {
	ln    net.Listener
	conn  net.Conn
	path  string
	conns chan net.Conn
}

func newMockPeer(t *testing.T) *mockPeer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "replica.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	p := &mockPeer{ln: ln, path: path, conns: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		p.conns <- conn
	}()

	t.Cleanup(func() {
		ln.Close()
		if p.conn != nil {
			p.conn.Close()
		}
	})
	return p
}

// waitAccepted blocks until the peer's Accept has returned, then pins
// the connection to p.conn. Only ever called from the test goroutine,
// so the assignment needs no synchronization of its own.
func (p *mockPeer) waitAccepted(t *testing.T) {
	t.Helper()
	select {
	case conn := <-p.conns:
		p.conn = conn
	case <-time.After(2 * time.Second):
		t.Fatal("peer never accepted a connection")
	}
}

func openTestConnection(t *testing.T, p *mockPeer, opts ...Option) *Connection {
	t.Helper()
	c, err := Open(p.path, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p.waitAccepted(t)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEchoRoundTrip(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p)

	go func() {
		// write_at(buf="ABCDEF", offset=0) -> Response seq=0, no data
		f, err := recvFrame(p.conn)
		if err != nil {
			t.Errorf("peer recvFrame (write): %v", err)
			return
		}
		if f.typ != kindWrite || f.seq != 0 || string(f.data) != "ABCDEF" {
			t.Errorf("unexpected write frame: %+v data=%q", f, f.data)
		}
		putBuffer(f.data)
		if err := sendFrame(p.conn, &frame{seq: 0, typ: kindResponse}); err != nil {
			t.Errorf("peer sendFrame (write response): %v", err)
			return
		}

		// read_at(offset=0, len=6) -> Response seq=1, data="ABCDEF"
		f2, err := recvFrame(p.conn)
		if err != nil {
			t.Errorf("peer recvFrame (read): %v", err)
			return
		}
		if f2.typ != kindRead || f2.seq != 1 {
			t.Errorf("unexpected read frame: %+v", f2)
		}
		payload := []byte("ABCDEF")
		if err := sendFrame(p.conn, &frame{seq: 1, typ: kindResponse, dataLength: uint32(len(payload)), data: payload}); err != nil {
			t.Errorf("peer sendFrame (read response): %v", err)
		}
	}()

	if err := c.WriteAt([]byte("ABCDEF"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	out := make([]byte, 6)
	if err := c.ReadAt(out, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(out) != "ABCDEF" {
		t.Fatalf("ReadAt result = %q, want %q", out, "ABCDEF")
	}
}

func TestOutOfOrderResponsesRouteToTheRightCaller(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p)

	payloads := map[uint32][]byte{
		0: []byte("P0xxxx"),
		1: []byte("P1xxxx"),
		2: []byte("P2xxxx"),
	}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		// Goroutine i reads at offset i*6; which seq it gets depends on
		// scheduling, so requests are keyed by offset and each response
		// echoes the seq of the request it answers.
		received := make(map[uint32]*frame)
		for len(received) < 3 {
			f, err := recvFrame(p.conn)
			if err != nil {
				t.Errorf("peer recvFrame: %v", err)
				return
			}
			received[uint32(f.offset/6)] = f
		}
		// Respond out of order: 2, 0, 1.
		for _, idx := range []uint32{2, 0, 1} {
			payload := payloads[idx]
			seq := received[idx].seq
			if err := sendFrame(p.conn, &frame{seq: seq, typ: kindResponse, dataLength: uint32(len(payload)), data: payload}); err != nil {
				t.Errorf("peer sendFrame seq=%d: %v", seq, err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	results := make([][]byte, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := make([]byte, 6)
			if err := c.ReadAt(buf, int64(i)*6); err != nil {
				t.Errorf("ReadAt[%d]: %v", i, err)
				return
			}
			results[i] = buf
		}(i)
	}
	wg.Wait()
	<-serverDone

	for i := 0; i < 3; i++ {
		want := payloads[uint32(i)]
		if string(results[i]) != string(want) {
			t.Fatalf("goroutine %d got %q, want %q (its own payload, regardless of server reply order)", i, results[i], want)
		}
	}
}

func TestTimeoutFailsOnlyTheStaleRequest(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p, WithRequestTimeout(100*time.Millisecond))

	go func() {
		// Swallow the request and never respond.
		f, err := recvFrame(p.conn)
		if err == nil {
			putBuffer(f.data)
		}
	}()

	start := time.Now()
	buf := make([]byte, 4)
	err := c.ReadAt(buf, 0)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
	if c.IsClosed() {
		t.Fatal("a timed-out request must not close the connection")
	}
}

func TestPeerCloseFailsPendingRequestsAndFutureSubmitsAreClosed(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p, WithRequestTimeout(5*time.Second))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := make([]byte, 4)
			errs[i] = c.ReadAt(buf, int64(i)*4)
		}(i)
	}

	// Drain both requests off the wire, then slam the connection shut
	// with a Close frame, per spec.md scenario 4.
	go func() {
		for i := 0; i < 2; i++ {
			f, err := recvFrame(p.conn)
			if err != nil {
				return
			}
			putBuffer(f.data)
		}
		sendFrame(p.conn, &frame{typ: kindClose})
	}()

	wg.Wait()
	for i, err := range errs {
		if err == nil {
			t.Fatalf("request %d: expected an error after peer close", i)
		}
	}

	// Give the dispatcher a moment to finish tearing the connection down.
	deadline := time.Now().Add(time.Second)
	for !c.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := c.ReadAt(make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on submit after peer close, got %v", err)
	}
}

func TestMagicMismatchClosesConnectionAndFailsPending(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p, WithRequestTimeout(5*time.Second))

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.ReadAt(make([]byte, 4), 0)
	}()

	go func() {
		if _, err := recvFrame(p.conn); err != nil {
			return
		}
		var hdr [headerSize]byte // all-zero magic, not 0x1B01
		p.conn.Write(hdr[:])
	}()

	err := <-readErr
	if err == nil {
		t.Fatal("expected an error after a magic mismatch")
	}

	deadline := time.Now().Add(time.Second)
	for !c.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !c.IsClosed() {
		t.Fatal("expected connection to close after a protocol error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newMockPeer(t)
	c := openTestConnection(t, p)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenRejectsOverlongSocketPath(t *testing.T) {
	long := make([]byte, maxSocketPathLen)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Open(string(long))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

// BenchmarkSubmitRoundTrip measures one ReadAt round trip against a peer
// that echoes back immediately, the cost the registry/dispatch/timer
// machinery adds on top of the raw socket.
func BenchmarkSubmitRoundTrip(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "bench.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		b.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverReady := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverReady <- conn
		payload := []byte("ABCDEF")
		for {
			f, err := recvFrame(conn)
			if err != nil {
				return
			}
			putBuffer(f.data)
			if err := sendFrame(conn, &frame{seq: f.seq, typ: kindResponse, dataLength: uint32(len(payload)), data: payload}); err != nil {
				return
			}
		}
	}()

	c, err := Open(path)
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	defer c.Close()
	<-serverReady

	buf := make([]byte, 6)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.ReadAt(buf, 0); err != nil {
			b.Fatalf("ReadAt: %v", err)
		}
	}
}

func TestOpenFailsAfterExhaustingRetries(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nothing-listens-here.sock")
	_, err := Open(missing, WithRetryCount(2), WithRetryInterval(10*time.Millisecond))
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
}

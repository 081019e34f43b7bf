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

// bufferPool recycles payload buffers the dispatcher reads frames into,
// mirroring the teacher's own defaultAllocator.Get/Put call shape
// (session.go's recvLoop) and the C original's malloc/free pairing
// around msg->Data. Buffers are sized on first use and bucketed by
// power-of-two capacity classes to keep the pool effective across the
// wide range of read/write payload sizes a volume driver issues.
type bufferPool struct {
	classes sync.Map // map[int]*sync.Pool, keyed by capacity class
}

var globalBufferPool bufferPool

func classFor(n int) int {
	c := 256
	for c < n {
		c <<= 1
	}
	return c
}

func (p *bufferPool) get(n int) []byte {
	class := classFor(n)
	v, _ := p.classes.LoadOrStore(class, &sync.Pool{
		New: func() interface{} {
			b := make([]byte, class)
			return &b
		},
	})
	pool := v.(*sync.Pool)
	bp := pool.Get().(*[]byte)
	buf := (*bp)[:n]
	return buf
}

func (p *bufferPool) put(buf []byte) {
	if buf == nil {
		return
	}
	class := cap(buf)
	v, ok := p.classes.Load(class)
	if !ok {
		return
	}
	pool := v.(*sync.Pool)
	full := buf[:0:class]
	full = full[:cap(full)]
	pool.Put(&full)
}

func getBuffer(n int) []byte { return globalBufferPool.get(n) }
func putBuffer(buf []byte)   { globalBufferPool.put(buf) }

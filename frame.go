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
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// magicVersion identifies this wire protocol. Any frame, in either
// direction, that does not carry this value in its first two bytes is a
// fatal protocol error for the receiver.
const magicVersion uint16 = 0x1B01

// headerSize is the fixed, packed, little-endian header length: u16 + u32
// + u32 + i64 + u32 + u32.
const headerSize = 2 + 4 + 4 + 8 + 4 + 4

// kind enumerates the wire message types. Read/Write/Unmap flow
// client->server; Response/Error/EOF/Close flow server->client.
type kind uint32

const (
	kindRead kind = iota
	kindWrite
	kindResponse
	kindError
	kindEOF
	kindClose
	kindUnmap
)

func (k kind) String() string {
	switch k {
	case kindRead:
		return "Read"
	case kindWrite:
		return "Write"
	case kindResponse:
		return "Response"
	case kindError:
		return "Error"
	case kindEOF:
		return "EOF"
	case kindClose:
		return "Close"
	case kindUnmap:
		return "Unmap"
	default:
		return "Unknown"
	}
}

// frame is the in-memory representation of one wire message: the header
// fields plus its payload, if any.
type frame struct {
	seq        uint32
	typ        kind
	offset     int64
	size       uint32
	dataLength uint32
	data       []byte
}

// encodeHeader packs f's header fields into a headerSize-byte buffer in
// wire order: magic, seq, type, offset, size, dataLength.
func encodeHeader(f *frame) [headerSize]byte {
	var b [headerSize]byte
	binary.LittleEndian.PutUint16(b[0:2], magicVersion)
	binary.LittleEndian.PutUint32(b[2:6], f.seq)
	binary.LittleEndian.PutUint32(b[6:10], uint32(f.typ))
	binary.LittleEndian.PutUint64(b[10:18], uint64(f.offset))
	binary.LittleEndian.PutUint32(b[18:22], f.size)
	binary.LittleEndian.PutUint32(b[22:26], f.dataLength)
	return b
}

// decodeHeader unpacks a headerSize-byte wire header into f, returning
// ErrProtocol if the magic does not match.
func decodeHeader(b [headerSize]byte, f *frame) error {
	magic := binary.LittleEndian.Uint16(b[0:2])
	if magic != magicVersion {
		return errors.Wrapf(ErrProtocol, "bad magic 0x%04x, expected 0x%04x", magic, magicVersion)
	}
	f.seq = binary.LittleEndian.Uint32(b[2:6])
	f.typ = kind(binary.LittleEndian.Uint32(b[6:10]))
	f.offset = int64(binary.LittleEndian.Uint64(b[10:18]))
	f.size = binary.LittleEndian.Uint32(b[18:22])
	f.dataLength = binary.LittleEndian.Uint32(b[22:26])
	return nil
}

// sendFrame writes f's header, then, if it carries a payload, writes
// exactly dataLength bytes from f.data. The header is always written in
// full before any payload byte goes out, and payload is never coalesced
// into the header write.
func sendFrame(w io.Writer, f *frame) error {
	hdr := encodeHeader(f)
	if err := writeFull(w, hdr[:]); err != nil {
		return errors.Wrap(err, "write header")
	}
	if f.dataLength > 0 {
		if err := writeFull(w, f.data[:f.dataLength]); err != nil {
			return errors.Wrap(err, "write payload")
		}
	}
	return nil
}

// recvFrame reads one complete frame from r: a headerSize header,
// validated for magic, followed by dataLength payload bytes allocated
// from the shared pool. The caller owns the returned frame's data and
// must release it back to the pool once it has been copied elsewhere.
func recvFrame(r io.Reader) (*frame, error) {
	var hdr [headerSize]byte
	if err := readFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrProtocol, "short header read")
		}
		return nil, errors.Wrap(err, "read header")
	}

	f := new(frame)
	if err := decodeHeader(hdr, f); err != nil {
		return nil, err
	}

	if f.dataLength > 0 {
		f.data = getBuffer(int(f.dataLength))
		if err := readFull(r, f.data); err != nil {
			putBuffer(f.data)
			f.data = nil
			return nil, errors.Wrap(err, "read payload")
		}
	}
	return f, nil
}

// writeFull writes all of buf to w, looping on short writes. Go's
// net.Conn.Write already retries on EINTR internally, so unlike the C
// original this never needs to special-case the interrupted syscall.
func writeFull(w io.Writer, buf []byte) error {
	for written := 0; written < len(buf); {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// readFull reads exactly len(buf) bytes from r, looping on short reads
// and treating peer EOF mid-read as an error (io.ErrUnexpectedEOF via
// io.ReadFull).
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

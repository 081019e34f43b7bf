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

import "github.com/pkg/errors"

// Sentinel errors returned (possibly wrapped) by the public API. Use
// errors.Is against these, or errors.Cause to unwrap a wrapped instance.
var (
	// ErrInvalidArgument is returned for a nil connection, an overlong
	// socket path, or an unrecognized request kind.
	ErrInvalidArgument = errors.New("longhorn: invalid argument")

	// ErrConnectFailed is returned when Open exhausts its retry budget
	// without establishing a connection.
	ErrConnectFailed = errors.New("longhorn: connect failed")

	// ErrClosed is returned when a request is submitted after Close, or
	// when the connection closes out from under an in-flight request.
	ErrClosed = errors.New("longhorn: connection closed")

	// ErrProtocol is the teardown cause the dispatcher records and logs
	// on a magic mismatch or a short header read; requests in flight at
	// that point fail with ErrClosed. A frame of unrecognized kind is
	// logged and dropped without raising this error.
	ErrProtocol = errors.New("longhorn: protocol error")

	// ErrTimeout is returned when a request outlives the shared
	// deadline without a matching response.
	ErrTimeout = errors.New("longhorn: request timed out")

	// ErrIO wraps an otherwise-uncategorized read/write failure.
	ErrIO = errors.New("longhorn: i/o error")
)

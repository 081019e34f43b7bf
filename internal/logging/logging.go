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

// Package logging is a thin wrapper over the standard library logger,
// giving call sites leveled helpers without pulling in a structured
// logging dependency the rest of the client core has no other use for.
package logging

import "log"

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// Warnf logs a recoverable condition: a dropped frame, an unknown
// sequence, a request cancelled by timeout or close.
func Warnf(format string, args ...interface{}) {
	log.Printf("WARN "+format, args...)
}

// Errorf logs a connection-fatal condition.
func Errorf(format string, args ...interface{}) {
	log.Printf("ERROR "+format, args...)
}

// Debugf logs verbose lifecycle detail, on by default to match the
// original implementation's unconditional errorf() trace logging.
func Debugf(format string, args ...interface{}) {
	log.Printf("DEBUG "+format, args...)
}

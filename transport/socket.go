// Copyright (c) 2023 The gchannel Authors
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

// Package transport is the asynchronous socket boundary of gchannel: reads and writes are issued
// without blocking the caller and report back through a Completion.
package transport

import "net"

// Completion is invoked exactly once per Read or Write, from a worker goroutine, with the
// number of bytes transferred and the failure if any. End of stream is reported as io.EOF and
// operations on a closed socket complete with net.ErrClosed.
type Completion func(n int, err error)

// Socket is an asynchronous, completion-driven connection.
//
// At most one Read and one Write may be outstanding at any time, the buffer passed to
// either belongs to the socket until the completion has been invoked.
type Socket interface {
	// Read reads into p and reports through cb.
	Read(p []byte, cb Completion)

	// Write writes p and reports through cb, a completion may report a short write.
	Write(p []byte, cb Completion)

	// ShutdownInput shuts down the reading side of the connection.
	ShutdownInput() error

	// ShutdownOutput shuts down the writing side of the connection.
	ShutdownOutput() error

	// Close closes the connection, outstanding operations complete with net.ErrClosed.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

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

package transport

import (
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/panjf2000/gchannel/pool/goroutine"
)

type connSocket struct {
	conn    net.Conn
	workers *goroutine.Pool
	closed  int32
	eof     int32
}

// NewConnSocket adapts a blocking net.Conn: every operation runs as a task of workers.
func NewConnSocket(conn net.Conn, workers *goroutine.Pool) Socket {
	return &connSocket{conn: conn, workers: workers}
}

func (s *connSocket) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

func (s *connSocket) Read(p []byte, cb Completion) {
	goroutine.Go(s.workers, func() {
		if s.isClosed() {
			cb(0, net.ErrClosed)
			return
		}
		if atomic.LoadInt32(&s.eof) == 1 {
			cb(0, io.EOF)
			return
		}
		n, err := s.conn.Read(p)
		switch {
		case s.isClosed():
			n, err = 0, net.ErrClosed
		case errors.Is(err, io.EOF) && n > 0:
			// Deliver the data first, the end of stream is reported by the next read.
			atomic.StoreInt32(&s.eof, 1)
			err = nil
		case errors.Is(err, io.EOF):
			err = io.EOF
		}
		cb(n, err)
	})
}

func (s *connSocket) Write(p []byte, cb Completion) {
	goroutine.Go(s.workers, func() {
		if s.isClosed() {
			cb(0, net.ErrClosed)
			return
		}
		n, err := s.conn.Write(p)
		if err != nil && s.isClosed() {
			err = net.ErrClosed
		}
		cb(n, err)
	})
}

func (s *connSocket) ShutdownInput() error {
	if s.isClosed() {
		return net.ErrClosed
	}
	if c, ok := s.conn.(interface{ CloseRead() error }); ok {
		return c.CloseRead()
	}
	return nil
}

func (s *connSocket) ShutdownOutput() error {
	if s.isClosed() {
		return net.ErrClosed
	}
	if c, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return c.CloseWrite()
	}
	return nil
}

func (s *connSocket) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return net.ErrClosed
	}
	return s.conn.Close()
}

func (s *connSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *connSocket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

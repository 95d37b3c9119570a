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

//go:build linux
// +build linux

package transport

import (
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/internal/netpoll"
	"github.com/panjf2000/gchannel/internal/socket"
	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/pool/goroutine"
)

// Reactor serves sockets from a single epoll poller: operations that would block
// are parked until the descriptor becomes ready and completed by a worker task.
type Reactor struct {
	poller  *netpoll.Poller
	workers *goroutine.Pool

	mu      sync.RWMutex
	sockets map[int]*reactorSocket
	closed  bool
	done    chan struct{}
}

// OpenReactor starts a reactor whose completions run on workers.
func OpenReactor(workers *goroutine.Pool) (*Reactor, error) {
	p, err := netpoll.OpenPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		poller:  p,
		workers: workers,
		sockets: make(map[int]*reactorSocket),
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Reactor) run() {
	defer close(r.done)
	if err := r.poller.Polling(r.dispatch); err != nil && err != netpoll.ErrPollerClosed {
		logging.Errorf("reactor is exiting due to error: %v", err)
	}
}

func (r *Reactor) dispatch(fd int, ev uint32) {
	r.mu.RLock()
	s := r.sockets[fd]
	r.mu.RUnlock()
	if s != nil {
		s.ready(ev)
	}
}

// Socket takes over conn: its descriptor is duplicated into the reactor and conn is closed.
func (r *Reactor) Socket(conn net.Conn) (Socket, error) {
	if conn == nil {
		return nil, errorx.ErrInvalidNetConn
	}
	fd, err := socket.Dup(conn)
	if err != nil {
		return nil, err
	}
	s := &reactorSocket{r: r, fd: fd, laddr: conn.LocalAddr(), raddr: conn.RemoteAddr()}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = unix.Close(fd)
		return nil, errorx.ErrReactorClosed
	}
	r.sockets[fd] = s
	r.mu.Unlock()

	if err = conn.Close(); err != nil {
		logging.Warnf("failed to close the connection handed over to the reactor: %v", err)
	}
	return s, nil
}

// Close stops the poller and closes every socket it still serves.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errorx.ErrReactorClosed
	}
	r.closed = true
	sockets := make([]*reactorSocket, 0, len(r.sockets))
	for _, s := range r.sockets {
		sockets = append(sockets, s)
	}
	r.mu.Unlock()

	for _, s := range sockets {
		_ = s.Close()
	}
	if err := r.poller.Trigger(func(interface{}) error { return netpoll.ErrPollerClosed }, nil); err != nil {
		return err
	}
	<-r.done
	return r.poller.Close()
}

func (r *Reactor) remove(fd int) {
	r.mu.Lock()
	delete(r.sockets, fd)
	r.mu.Unlock()
}

type pendingOp struct {
	p  []byte
	cb Completion
}

type reactorSocket struct {
	r            *Reactor
	fd           int
	laddr, raddr net.Addr

	mu         sync.Mutex
	read       *pendingOp
	write      *pendingOp
	registered bool
	closed     bool
}

func (s *reactorSocket) complete(cb Completion, n int, err error) {
	goroutine.Go(s.r.workers, func() { cb(n, err) })
}

// tryRead performs one non-blocking read, ok is false when the descriptor is not readable yet.
func (s *reactorSocket) tryRead(p []byte) (n int, ok bool, err error) {
	for {
		n, err = unix.Read(s.fd, p)
		if err != unix.EINTR {
			break
		}
	}
	switch {
	case err == unix.EAGAIN:
		return 0, false, nil
	case err != nil:
		return 0, true, os.NewSyscallError("read", err)
	case n == 0 && len(p) > 0:
		return 0, true, io.EOF
	}
	return n, true, nil
}

func (s *reactorSocket) tryWrite(p []byte) (n int, ok bool, err error) {
	for {
		n, err = unix.Write(s.fd, p)
		if err != unix.EINTR {
			break
		}
	}
	switch {
	case err == unix.EAGAIN:
		return 0, false, nil
	case err != nil:
		return 0, true, os.NewSyscallError("write", err)
	}
	return n, true, nil
}

func (s *reactorSocket) Read(p []byte, cb Completion) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.complete(cb, 0, net.ErrClosed)
		return
	}
	if n, ok, err := s.tryRead(p); ok {
		s.mu.Unlock()
		s.complete(cb, n, err)
		return
	}
	s.read = &pendingOp{p, cb}
	err := s.arm()
	s.mu.Unlock()
	if err != nil {
		s.fail(err)
	}
}

func (s *reactorSocket) Write(p []byte, cb Completion) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.complete(cb, 0, net.ErrClosed)
		return
	}
	if n, ok, err := s.tryWrite(p); ok {
		s.mu.Unlock()
		s.complete(cb, n, err)
		return
	}
	s.write = &pendingOp{p, cb}
	err := s.arm()
	s.mu.Unlock()
	if err != nil {
		s.fail(err)
	}
}

// arm registers the interest of the parked operations, the caller holds s.mu.
func (s *reactorSocket) arm() error {
	var events uint32
	if s.read != nil {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if s.write != nil {
		events |= unix.EPOLLOUT
	}
	if events == 0 {
		return nil
	}
	if !s.registered {
		s.registered = true
		return s.r.poller.Add(s.fd, events)
	}
	return s.r.poller.Mod(s.fd, events)
}

// ready runs on the poller goroutine.
func (s *reactorSocket) ready(ev uint32) {
	type result struct {
		cb  Completion
		n   int
		err error
	}
	var results []result

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if op := s.read; op != nil && ev&netpoll.InEvents != 0 {
		if n, ok, err := s.tryRead(op.p); ok {
			s.read = nil
			results = append(results, result{op.cb, n, err})
		}
	}
	if op := s.write; op != nil && ev&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		if n, ok, err := s.tryWrite(op.p); ok {
			s.write = nil
			results = append(results, result{op.cb, n, err})
		}
	}
	err := s.arm()
	s.mu.Unlock()

	for _, res := range results {
		s.complete(res.cb, res.n, res.err)
	}
	if err != nil {
		s.fail(err)
	}
}

// fail completes the parked operations with err after the poller refused to arm them.
func (s *reactorSocket) fail(err error) {
	s.mu.Lock()
	read, write := s.read, s.write
	s.read, s.write = nil, nil
	s.mu.Unlock()
	if read != nil {
		s.complete(read.cb, 0, err)
	}
	if write != nil {
		s.complete(write.cb, 0, err)
	}
}

func (s *reactorSocket) ShutdownInput() error {
	return s.shutdown(unix.SHUT_RD)
}

func (s *reactorSocket) ShutdownOutput() error {
	return s.shutdown(unix.SHUT_WR)
}

func (s *reactorSocket) shutdown(how int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	if err := unix.Shutdown(s.fd, how); err != nil && err != unix.ENOTCONN {
		return os.NewSyscallError("shutdown", err)
	}
	return nil
}

func (s *reactorSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.closed = true
	read, write := s.read, s.write
	s.read, s.write = nil, nil
	if s.registered {
		_ = s.r.poller.Delete(s.fd)
	}
	s.r.remove(s.fd)
	err := os.NewSyscallError("close", unix.Close(s.fd))
	s.mu.Unlock()

	if read != nil {
		s.complete(read.cb, 0, net.ErrClosed)
	}
	if write != nil {
		s.complete(write.cb, 0, net.ErrClosed)
	}
	return err
}

func (s *reactorSocket) LocalAddr() net.Addr {
	return s.laddr
}

func (s *reactorSocket) RemoteAddr() net.Addr {
	return s.raddr
}

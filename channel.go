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

package gchannel

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/outbound"
	"github.com/panjf2000/gchannel/pipeline"
	"github.com/panjf2000/gchannel/pool/chunk"
	"github.com/panjf2000/gchannel/transport"
)

// State is the lifecycle state of a channel.
type State int32

const (
	// StateOpen is the state of a channel from construction on.
	StateOpen State = iota
	// StateInputShutdown means the peer closed its output, the channel is about to close.
	StateInputShutdown
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateInputShutdown:
		return "input-shutdown"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var nextChannelID uint64

// Channel binds a transport socket to a handler pipeline.
//
// Exactly one read is outstanding while the channel is running and at most one write is in flight,
// its read chunk belongs to the read direction and its current write chunk to the holder of the
// write flag. Close may be called at any time from any goroutine.
type Channel struct {
	id       uint64
	sock     transport.Socket
	pool     *chunk.Pool
	opts     *Options
	logger   logging.Logger
	pipeline *pipeline.Pipeline
	writer   *outbound.Writer
	done     chan struct{}

	state   int32 // State
	reading int32 // 1 once the read direction is taken, by Start or by Close
	writing int32 // 1 while a write cycle is active

	readChunk  chunk.Chunk
	writeChunk chunk.Chunk

	mu                sync.Mutex
	ctx               interface{}
	handshake         HandshakeHandler
	handshakeListener HandshakeCompletedListener
}

// NewChannel wraps sock into a channel whose chunks come from pool and whose pipeline is set up by init.
// On failure everything acquired so far is released and sock is closed.
func NewChannel(sock transport.Socket, pool *chunk.Pool, init pipeline.Initializer, opts ...Option) (*Channel, error) {
	return newChannel(sock, pool, init, loadOptions(opts...))
}

func newChannel(sock transport.Socket, pool *chunk.Pool, init pipeline.Initializer, options *Options) (c *Channel, err error) {
	if sock == nil {
		return nil, errorx.ErrInvalidNetConn
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	c = &Channel{
		id:     atomic.AddUint64(&nextChannelID, 1),
		sock:   sock,
		pool:   pool,
		opts:   options,
		logger: logger,
		done:   make(chan struct{}),
	}
	c.pipeline = pipeline.New(logger)

	defer func() {
		if err != nil {
			if c.writer != nil {
				_ = c.writer.Close()
			}
			if !c.readChunk.IsZero() {
				_ = c.readChunk.Release()
			}
			if cerr := sock.Close(); cerr != nil {
				logger.Warnf("failed to close the socket of an aborted channel: %v", cerr)
			}
			c = nil
		}
	}()

	if c.readChunk, err = pool.Allocate(options.ReadBufferSize, options.PoolBlockTimeout); err != nil {
		return
	}
	mode := outbound.NonBlocking
	if options.BlockingWrite {
		mode = outbound.Blocking
	}
	c.writer = outbound.New(pool, c.flush, outbound.Config{
		Capacity:     options.OutboundQueueCapacity,
		Mode:         mode,
		BlockTimeout: options.PoolBlockTimeout,
	})
	if err = c.pipeline.Init(c, init); err != nil {
		return
	}
	if options.Handshake != nil {
		c.handshake, c.handshakeListener = options.Handshake(c)
	}

	if perr := c.pipeline.Invoke(c, pipeline.EventNewChannel, nil); perr != nil {
		logger.Errorf("channel %d: %v", c.id, perr)
	}
	return
}

// ID returns the unique id of the channel.
func (c *Channel) ID() uint64 {
	return c.id
}

// State returns the current state of the channel.
func (c *Channel) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// IsClosed reports whether the channel has been closed.
func (c *Channel) IsClosed() bool {
	return c.State() == StateClosed
}

// Done is closed once Close has finished.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Pipeline returns the handler pipeline of the channel.
func (c *Channel) Pipeline() *pipeline.Pipeline {
	return c.pipeline
}

// Context returns a user-defined context.
func (c *Channel) Context() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// SetContext sets a user-defined context.
func (c *Channel) SetContext(ctx interface{}) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// SetHandshakeHandler sets the handler whose handshake begins on Start.
func (c *Channel) SetHandshakeHandler(h HandshakeHandler) {
	c.mu.Lock()
	c.handshake = h
	c.mu.Unlock()
}

// SetHandshakeCompletedListener sets the listener the handshake handler reports to.
func (c *Channel) SetHandshakeCompletedListener(l HandshakeCompletedListener) {
	c.mu.Lock()
	c.handshakeListener = l
	c.mu.Unlock()
}

// LocalAddr returns the local socket address, it fails with ErrChannelClosed once the channel
// is closed or when it has no socket.
func (c *Channel) LocalAddr() (net.Addr, error) {
	if c.IsClosed() || c.sock == nil {
		return nil, errorx.ErrChannelClosed
	}
	return c.sock.LocalAddr(), nil
}

// RemoteAddr returns the address of the remote peer.
func (c *Channel) RemoteAddr() (net.Addr, error) {
	if c.IsClosed() || c.sock == nil {
		return nil, errorx.ErrChannelClosed
	}
	return c.sock.RemoteAddr(), nil
}

// Start arms the first read, then begins the handshake if a handshake handler is set.
func (c *Channel) Start() error {
	if !atomic.CompareAndSwapInt32(&c.reading, 0, 1) {
		if c.IsClosed() {
			return errorx.ErrChannelClosed
		}
		return errorx.ErrChannelStarted
	}
	c.continueRead()

	c.mu.Lock()
	h, l := c.handshake, c.handshakeListener
	c.mu.Unlock()
	if h != nil {
		if err := h.BeginHandshake(c, l); err != nil {
			c.logger.Errorf("channel %d: failed to begin handshake: %v", c.id, err)
			_ = c.Close()
			return err
		}
	}
	return nil
}

// Write passes msg through the outbound path of the pipeline.
func (c *Channel) Write(msg interface{}) error {
	if c.IsClosed() {
		return errorx.ErrChannelClosed
	}
	return c.pipeline.Invoke(c, pipeline.EventChannelWrite, msg)
}

// WriteRaw enqueues buf for transmission, bypassing the pipeline.
// buf is copied, the caller may reuse it as soon as WriteRaw returns.
func (c *Channel) WriteRaw(buf []byte) error {
	if c.IsClosed() {
		return errorx.ErrChannelClosed
	}
	if err := c.writer.Enqueue(buf); err != nil {
		if errors.Is(err, errorx.ErrWriterClosed) {
			return errorx.ErrChannelClosed
		}
		return err
	}
	return nil
}

// Close shuts the channel down. Only the first call does anything, it releases the chunks
// of idle directions, discards the pending writes, shuts the socket down, notifies the
// pipeline and releases it. The returned error aggregates every failure along the way.
func (c *Channel) Close() (err error) {
	for {
		s := atomic.LoadInt32(&c.state)
		if State(s) == StateClosed {
			c.logger.Debugf("channel %d is already closed", c.id)
			return nil
		}
		if atomic.CompareAndSwapInt32(&c.state, s, int32(StateClosed)) {
			break
		}
	}

	// A busy direction releases its own chunk once its completion observes the closed state.
	if atomic.CompareAndSwapInt32(&c.reading, 0, 1) {
		err = multierr.Append(err, c.releaseReadChunk())
	}
	if atomic.CompareAndSwapInt32(&c.writing, 0, 1) {
		err = multierr.Append(err, c.releaseWriteChunk())
	}
	err = multierr.Append(err, c.writer.Close())

	if serr := c.sock.ShutdownInput(); serr != nil {
		err = multierr.Append(err, &errorx.TransportError{Op: "shutdown input", Err: serr})
	}
	if serr := c.sock.ShutdownOutput(); serr != nil {
		err = multierr.Append(err, &errorx.TransportError{Op: "shutdown output", Err: serr})
	}
	if serr := c.sock.Close(); serr != nil {
		err = multierr.Append(err, &errorx.TransportError{Op: "close", Err: serr})
	}

	err = multierr.Append(err, c.pipeline.Invoke(c, pipeline.EventChannelClosed, nil))
	c.pipeline.Release()
	close(c.done)

	if err != nil {
		c.logger.Debugf("channel %d closed with errors: %v", c.id, err)
	}
	return
}

func (c *Channel) releaseReadChunk() error {
	rc := c.readChunk
	c.readChunk = chunk.Chunk{}
	if rc.IsZero() {
		return nil
	}
	return rc.Release()
}

func (c *Channel) releaseWriteChunk() error {
	wc := c.writeChunk
	c.writeChunk = chunk.Chunk{}
	if wc.IsZero() {
		return nil
	}
	return wc.Release()
}

// ================================================= read path =================================================

func (c *Channel) continueRead() {
	if c.IsClosed() {
		if err := c.releaseReadChunk(); err != nil {
			c.logger.Warnf("channel %d: %v", c.id, err)
		}
		return
	}
	c.sock.Read(c.readChunk.Writable(), c.readCompleted)
}

func (c *Channel) readCompleted(n int, err error) {
	if c.IsClosed() {
		_ = c.releaseReadChunk()
		return
	}

	eof := errors.Is(err, io.EOF)
	if err != nil && !eof {
		c.fail("read", err)
		_ = c.releaseReadChunk()
		return
	}

	rc := c.readChunk
	if n > 0 {
		rc.Produce(n)
		if perr := c.pipeline.FireRead(c, rc.Bytes()); perr != nil {
			c.logger.Errorf("channel %d: %v", c.id, perr)
			_ = c.Close()
			_ = c.releaseReadChunk()
			return
		}
		// Decoders copy whatever they keep, the window is always drained.
		rc.Consume(rc.Len())
	}

	if eof {
		if atomic.CompareAndSwapInt32(&c.state, int32(StateOpen), int32(StateInputShutdown)) {
			if perr := c.pipeline.Invoke(c, pipeline.EventInputShutdown, nil); perr != nil {
				c.logger.Errorf("channel %d: %v", c.id, perr)
			}
		}
		_ = c.Close()
		_ = c.releaseReadChunk()
		return
	}

	if rc.Len() == 0 {
		rc.Reset()
	} else {
		rc.Compact()
	}
	c.continueRead()
}

// ================================================= write path ================================================

// flush starts a write cycle unless one is already active.
func (c *Channel) flush() {
	if c.IsClosed() || !atomic.CompareAndSwapInt32(&c.writing, 0, 1) {
		return
	}
	c.writeNext()
}

// writeNext transmits the next pending chunk, the caller holds the write flag.
// It reports whether the cycle ended with the outbound queue drained.
func (c *Channel) writeNext() bool {
	for {
		if wc, ok := c.writer.Poll(); ok {
			c.writeChunk = wc
			if c.IsClosed() {
				_ = c.releaseWriteChunk()
				return false
			}
			c.sock.Write(wc.Bytes(), c.writeCompleted)
			return false
		}

		atomic.StoreInt32(&c.writing, 0)
		// An enqueue may have slipped in between the poll and the release of the flag.
		if c.writer.Len() == 0 {
			return true
		}
		if c.IsClosed() || !atomic.CompareAndSwapInt32(&c.writing, 0, 1) {
			return false
		}
	}
}

func (c *Channel) writeCompleted(n int, err error) {
	if c.IsClosed() {
		_ = c.releaseWriteChunk()
		return
	}
	if err != nil {
		_ = c.releaseWriteChunk()
		c.fail("write", err)
		return
	}

	wc := c.writeChunk
	wc.Consume(n)
	if wc.Len() > 0 {
		c.sock.Write(wc.Bytes(), c.writeCompleted)
		return
	}
	if rerr := c.releaseWriteChunk(); rerr != nil {
		c.logger.Warnf("channel %d: %v", c.id, rerr)
	}

	if c.writeNext() && c.opts.DisableKeepAlive {
		_ = c.Close()
	}
}

// fail reports a transport failure to the pipeline and closes the channel.
func (c *Channel) fail(op string, err error) {
	terr := &errorx.TransportError{Op: op, Err: err}
	c.logger.Debugf("channel %d: %v", c.id, terr)
	if perr := c.pipeline.FireException(c, terr); perr != nil {
		c.logger.Errorf("channel %d: %v", c.id, perr)
	}
	_ = c.Close()
}

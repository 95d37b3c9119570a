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

// Package outbound implements the bounded per-channel queue of pending writes.
package outbound

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/multierr"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pool/chunk"
)

// Mode decides how Enqueue waits for pool capacity.
type Mode int

const (
	// NonBlocking fails right away with ErrPoolExhausted when the pool is short of capacity.
	NonBlocking Mode = iota
	// Blocking waits up to Config.BlockTimeout for capacity.
	Blocking
)

// DefaultCapacity is the queue bound used when Config.Capacity is not positive.
const DefaultCapacity = 1024

// Config configures a Writer.
type Config struct {
	Capacity     int
	Mode         Mode
	BlockTimeout time.Duration
}

// Writer is an ordered queue of pending writes, each one held in a pool chunk.
type Writer struct {
	mu       sync.Mutex
	pool     *chunk.Pool
	pending  *queue.Queue
	flush    func()
	capacity int
	mode     Mode
	timeout  time.Duration
	closed   bool
}

// New returns an open Writer allocating from pool. flush is invoked after every
// successful Enqueue to start a write cycle if none is active.
func New(pool *chunk.Pool, flush func(), cfg Config) *Writer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	return &Writer{
		pool:     pool,
		pending:  queue.New(),
		flush:    flush,
		capacity: cfg.Capacity,
		mode:     cfg.Mode,
		timeout:  cfg.BlockTimeout,
	}
}

// Enqueue copies p into a chunk and appends it to the queue.
func (w *Writer) Enqueue(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errorx.ErrWriterClosed
	}
	if w.pending.Length() >= w.capacity {
		w.mu.Unlock()
		return errorx.ErrQueueFull
	}
	w.mu.Unlock()

	var timeout time.Duration
	if w.mode == Blocking {
		timeout = w.timeout
	}
	c, err := w.pool.Allocate(len(p), timeout)
	if err != nil {
		return err
	}
	_, _ = c.Write(p)

	w.mu.Lock()
	if w.closed || w.pending.Length() >= w.capacity {
		err = errorx.ErrQueueFull
		if w.closed {
			err = errorx.ErrWriterClosed
		}
		w.mu.Unlock()
		_ = c.Release()
		return err
	}
	w.pending.Add(c)
	w.mu.Unlock()

	if w.flush != nil {
		w.flush()
	}
	return nil
}

// Poll pops the next chunk to transmit, the caller becomes its owner.
func (w *Writer) Poll() (chunk.Chunk, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pending.Length() == 0 {
		return chunk.Chunk{}, false
	}
	return w.pending.Remove().(chunk.Chunk), true
}

// Len returns the number of pending writes.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Length()
}

// IsClosed reports whether Close has been called.
func (w *Writer) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close releases every pending chunk and rejects further writes. Only the first call has any effect.
func (w *Writer) Close() (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for w.pending.Length() > 0 {
		err = multierr.Append(err, w.pending.Remove().(chunk.Chunk).Release())
	}
	return
}

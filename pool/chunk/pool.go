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

// Package chunk implements a bounded arena of reusable byte buffers.
//
// Buffers are handed out as Chunk handles which carry the generation of the
// slot they refer to. Releasing a chunk bumps the generation of its slot, so
// every copy of the released handle turns stale: stale handles read as empty,
// ignore mutations and cannot be released a second time.
package chunk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/internal/math"
)

// MaxIdleSlots bounds the number of released slots a pool keeps for reuse.
const MaxIdleSlots = 1024

// Pool is a fixed-capacity arena of chunks shared across channels.
// The sum of the sizes of all outstanding chunks never exceeds its capacity.
type Pool struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	slots    int
	idle     int
	free     map[int][]*slot // idle slots by size class
	notify   chan struct{}   // closed and renewed on every release

	allocs        uint64
	releases      uint64
	staleReleases uint64
	outstanding   int64
}

// Stats is a snapshot of the accounting of a Pool.
type Stats struct {
	Capacity      int
	InUse         int
	Slots         int
	Idle          int
	Outstanding   int64
	Allocations   uint64
	Releases      uint64
	StaleReleases uint64
}

type slot struct {
	pool *Pool
	gen  uint32
	mem  []byte // backing array, reused across allocations
	buf  []byte // mem[:size] for the current owner
	r, w int
}

// NewPool returns a pool able to hold capacity bytes of outstanding chunks.
func NewPool(capacity int) *Pool {
	return &Pool{
		capacity: capacity,
		free:     make(map[int][]*slot),
		notify:   make(chan struct{}),
	}
}

// Capacity returns the total number of bytes the pool may hand out.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Available returns the number of bytes that can currently be allocated without blocking.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.inUse
}

// Allocate reserves a chunk of size bytes, waiting up to timeout for capacity to be released.
// A non-positive timeout makes a single attempt.
func (p *Pool) Allocate(size int, timeout time.Duration) (Chunk, error) {
	if timeout <= 0 {
		if err := p.check(size); err != nil {
			return Chunk{}, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.inUse+size > p.capacity {
			return Chunk{}, errorx.ErrPoolExhausted
		}
		return p.take(size), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.AllocateContext(ctx, size)
}

// AllocateContext reserves a chunk of size bytes, waiting until capacity is released or ctx is done.
// It returns ErrPoolExhausted when the deadline of ctx is exceeded.
func (p *Pool) AllocateContext(ctx context.Context, size int) (Chunk, error) {
	if err := p.check(size); err != nil {
		return Chunk{}, err
	}
	for {
		p.mu.Lock()
		if p.inUse+size <= p.capacity {
			c := p.take(size)
			p.mu.Unlock()
			return c, nil
		}
		wait := p.notify
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return Chunk{}, errorx.ErrPoolExhausted
			}
			return Chunk{}, ctx.Err()
		}
	}
}

// Deallocate gives the capacity held by c back to the pool and wakes up the waiters.
// Releasing a stale handle returns ErrStaleChunk and leaves the accounting untouched.
func (p *Pool) Deallocate(c Chunk) error {
	if c.s == nil || c.s.pool != p {
		atomic.AddUint64(&p.staleReleases, 1)
		return errorx.ErrStaleChunk
	}

	p.mu.Lock()
	s := c.s
	if atomic.LoadUint32(&s.gen) != c.gen {
		p.mu.Unlock()
		atomic.AddUint64(&p.staleReleases, 1)
		return errorx.ErrStaleChunk
	}
	atomic.AddUint32(&s.gen, 1)
	p.inUse -= len(s.buf)
	s.buf, s.r, s.w = nil, 0, 0
	if p.idle < MaxIdleSlots {
		class := len(s.mem)
		p.free[class] = append(p.free[class], s)
		p.idle++
	} else {
		s.mem = nil
		p.slots--
	}
	close(p.notify)
	p.notify = make(chan struct{})
	p.mu.Unlock()

	atomic.AddUint64(&p.releases, 1)
	atomic.AddInt64(&p.outstanding, -1)
	return nil
}

// Stats returns a snapshot of the pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse, slots, idle := p.inUse, p.slots, p.idle
	p.mu.Unlock()
	return Stats{
		Capacity:      p.capacity,
		InUse:         inUse,
		Slots:         slots,
		Idle:          idle,
		Outstanding:   atomic.LoadInt64(&p.outstanding),
		Allocations:   atomic.LoadUint64(&p.allocs),
		Releases:      atomic.LoadUint64(&p.releases),
		StaleReleases: atomic.LoadUint64(&p.staleReleases),
	}
}

func (p *Pool) check(size int) error {
	if size <= 0 {
		return errorx.ErrInvalidChunkSize
	}
	if size > p.capacity {
		return errorx.ErrChunkTooLarge
	}
	return nil
}

// take must be called with p.mu held and enough capacity left.
func (p *Pool) take(size int) Chunk {
	class := math.SizeClass(size, p.capacity)
	s := p.reuse(class)
	if s == nil {
		s = &slot{pool: p, mem: make([]byte, class)}
		p.slots++
	}
	s.buf = s.mem[:size]
	s.r, s.w = 0, 0
	p.inUse += size

	atomic.AddUint64(&p.allocs, 1)
	atomic.AddInt64(&p.outstanding, 1)
	return Chunk{s: s, gen: atomic.LoadUint32(&s.gen)}
}

// reuse pops an idle slot of the smallest size class holding at least class bytes.
func (p *Pool) reuse(class int) *slot {
	for c := class; c < p.capacity; c <<= 1 {
		if s := p.pop(c); s != nil {
			return s
		}
	}
	return p.pop(p.capacity)
}

func (p *Pool) pop(class int) *slot {
	list := p.free[class]
	n := len(list)
	if n == 0 {
		return nil
	}
	s := list[n-1]
	list[n-1] = nil
	p.free[class] = list[:n-1]
	p.idle--
	return s
}

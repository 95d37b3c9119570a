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

package chunk

import (
	"io"
	"sync/atomic"

	errorx "github.com/panjf2000/gchannel/errors"
)

// Chunk is a handle to a buffer owned by a Pool.
//
// The buffer is split in a readable window [r, w) and a writable window [w, cap).
// A Chunk must have exactly one owner at a time, the zero value refers to no buffer.
type Chunk struct {
	s   *slot
	gen uint32
}

func (c Chunk) live() *slot {
	if c.s == nil || atomic.LoadUint32(&c.s.gen) != c.gen {
		return nil
	}
	return c.s
}

// IsZero reports whether c refers to no buffer at all.
func (c Chunk) IsZero() bool {
	return c.s == nil
}

// Valid reports whether c is still owned, i.e. it has not been released.
func (c Chunk) Valid() bool {
	return c.live() != nil
}

// Cap returns the capacity of the chunk.
func (c Chunk) Cap() int {
	if s := c.live(); s != nil {
		return len(s.buf)
	}
	return 0
}

// Len returns the number of readable bytes.
func (c Chunk) Len() int {
	if s := c.live(); s != nil {
		return s.w - s.r
	}
	return 0
}

// Free returns the number of writable bytes.
func (c Chunk) Free() int {
	if s := c.live(); s != nil {
		return len(s.buf) - s.w
	}
	return 0
}

// Bytes returns the readable window. The slice aliases the chunk and is only
// valid until the chunk is mutated or released.
func (c Chunk) Bytes() []byte {
	if s := c.live(); s != nil {
		return s.buf[s.r:s.w]
	}
	return nil
}

// Writable returns the writable window, fill it and then call Produce.
func (c Chunk) Writable() []byte {
	if s := c.live(); s != nil {
		return s.buf[s.w:]
	}
	return nil
}

// Write appends p to the readable window, it fails with io.ErrShortWrite
// when p does not fit in the writable window.
func (c Chunk) Write(p []byte) (int, error) {
	s := c.live()
	if s == nil {
		return 0, errorx.ErrStaleChunk
	}
	n := copy(s.buf[s.w:], p)
	s.w += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Produce moves n bytes from the writable window into the readable window.
func (c Chunk) Produce(n int) {
	if s := c.live(); s != nil && n > 0 {
		if s.w += n; s.w > len(s.buf) {
			s.w = len(s.buf)
		}
	}
}

// Consume discards n bytes from the front of the readable window.
func (c Chunk) Consume(n int) {
	if s := c.live(); s != nil && n > 0 {
		if s.r += n; s.r > s.w {
			s.r = s.w
		}
	}
}

// Reset empties the chunk, making the whole capacity writable again.
func (c Chunk) Reset() {
	if s := c.live(); s != nil {
		s.r, s.w = 0, 0
	}
}

// Compact prepares the chunk for the next fill:
// an exhausted chunk is reset, unread bytes that do not start at the front are
// moved to the front, and unread bytes already at the front are left in place
// with the rest of the capacity writable.
func (c Chunk) Compact() {
	s := c.live()
	if s == nil {
		return
	}
	switch {
	case s.r == s.w:
		s.r, s.w = 0, 0
	case s.r > 0:
		s.w = copy(s.buf, s.buf[s.r:s.w])
		s.r = 0
	}
}

// Release gives the chunk back to its pool, the handle is stale afterwards.
func (c Chunk) Release() error {
	if c.s == nil {
		return errorx.ErrStaleChunk
	}
	return c.s.pool.Deallocate(c)
}

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

package codec

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gchannel/pipeline"
)

// IdleStateHandler fires OnIdle through the pipeline when a channel has not read, written,
// or done either for the configured durations. A zero duration disables that kind of check.
// Reads are observed in Decode, so the handler belongs in front of the frame decoders.
type IdleStateHandler struct {
	pipeline.BaseHandler

	readerIdle, writerIdle, allIdle time.Duration

	lastRead  int64 // unix nanoseconds
	lastWrite int64

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

// NewIdleStateHandler returns a handler for one channel.
func NewIdleStateHandler(readerIdle, writerIdle, allIdle time.Duration) *IdleStateHandler {
	return &IdleStateHandler{readerIdle: readerIdle, writerIdle: writerIdle, allIdle: allIdle}
}

// OnAdded starts the timers.
func (h *IdleStateHandler) OnAdded(c pipeline.Channel) error {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&h.lastRead, now)
	atomic.StoreInt64(&h.lastWrite, now)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readerIdle > 0 {
		h.schedule(c, pipeline.ReaderIdle, h.readerIdle)
	}
	if h.writerIdle > 0 {
		h.schedule(c, pipeline.WriterIdle, h.writerIdle)
	}
	if h.allIdle > 0 {
		h.schedule(c, pipeline.AllIdle, h.allIdle)
	}
	return nil
}

// schedule arms a timer checking state after d, the caller holds h.mu.
func (h *IdleStateHandler) schedule(c pipeline.Channel, state pipeline.IdleState, d time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		limit := h.limit(state)
		last := time.Unix(0, h.last(state))
		next := limit - time.Since(last)
		if next <= 0 {
			if err := c.Pipeline().FireIdle(c, state); err != nil {
				_ = c.Close()
				return
			}
			next = limit
		}

		h.mu.Lock()
		if !h.closed {
			t.Reset(next)
		}
		h.mu.Unlock()
	})
	h.timers = append(h.timers, t)
}

func (h *IdleStateHandler) limit(state pipeline.IdleState) time.Duration {
	switch state {
	case pipeline.ReaderIdle:
		return h.readerIdle
	case pipeline.WriterIdle:
		return h.writerIdle
	}
	return h.allIdle
}

func (h *IdleStateHandler) last(state pipeline.IdleState) int64 {
	r, w := atomic.LoadInt64(&h.lastRead), atomic.LoadInt64(&h.lastWrite)
	switch state {
	case pipeline.ReaderIdle:
		return r
	case pipeline.WriterIdle:
		return w
	}
	if r > w {
		return r
	}
	return w
}

// Decode records the read activity and passes in through.
func (h *IdleStateHandler) Decode(_ pipeline.Channel, in interface{}, out *pipeline.Output) error {
	atomic.StoreInt64(&h.lastRead, time.Now().UnixNano())
	out.Add(in)
	return nil
}

// OnWrite records the write activity.
func (h *IdleStateHandler) OnWrite(pipeline.Channel, interface{}) error {
	atomic.StoreInt64(&h.lastWrite, time.Now().UnixNano())
	return nil
}

// OnClosed stops the timers.
func (h *IdleStateHandler) OnClosed(pipeline.Channel) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	return nil
}

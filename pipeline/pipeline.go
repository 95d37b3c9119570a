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

// Package pipeline implements the ordered chain of protocol handlers that a
// channel drives: inbound events travel from the head to the tail, outbound
// events from the tail to the head.
package pipeline

import (
	"fmt"
	"runtime/debug"
	"sync"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/logging"
)

// Initializer registers the handlers of a freshly constructed channel.
type Initializer func(c Channel, p *Pipeline) error

// Event is a lifecycle event delivered to the pipeline.
type Event int

const (
	// EventNewChannel fires once the channel has been constructed.
	EventNewChannel Event = iota
	// EventInputShutdown fires when the peer half-closed the connection.
	EventInputShutdown
	// EventChannelClosed fires once the channel has been closed.
	EventChannelClosed
	// EventChannelWrite is the entry point of the outbound path, its payload is the message to write.
	EventChannelWrite
)

func (e Event) String() string {
	switch e {
	case EventNewChannel:
		return "NEW_CHANNEL"
	case EventInputShutdown:
		return "INPUT_SHUTDOWN"
	case EventChannelClosed:
		return "CHANNEL_CLOSED"
	case EventChannelWrite:
		return "CHANNEL_WRITE"
	}
	return "UNKNOWN"
}

// Pipeline is an ordered chain of handlers. It is built once by an Initializer
// and immutable afterwards, so events may be fired from several goroutines.
type Pipeline struct {
	mu       sync.RWMutex
	handlers []Handler
	sealed   bool
	logger   logging.Logger
}

// New returns an empty pipeline, a nil logger selects the default logger.
func New(logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Pipeline{logger: logger}
}

// AddLast appends handlers at the tail of the pipeline.
func (p *Pipeline) AddLast(handlers ...Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return errorx.ErrPipelineSealed
	}
	p.handlers = append(p.handlers, handlers...)
	return nil
}

// AddFirst prepends handlers at the head of the pipeline, keeping their order.
func (p *Pipeline) AddFirst(handlers ...Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return errorx.ErrPipelineSealed
	}
	p.handlers = append(append(make([]Handler, 0, len(handlers)+len(p.handlers)), handlers...), p.handlers...)
	return nil
}

// Init runs init and seals the pipeline, it can only succeed once.
// Any failure, including a panic of init, is reported as *errors.PipelineInitError.
func (p *Pipeline) Init(c Channel, init Initializer) error {
	p.mu.RLock()
	sealed := p.sealed
	p.mu.RUnlock()
	if sealed {
		return &errorx.PipelineInitError{Err: errorx.ErrPipelineSealed}
	}

	if init != nil {
		if err := invoke(func() error { return init(c, p) }); err != nil {
			return &errorx.PipelineInitError{Err: err}
		}
	}

	p.mu.Lock()
	p.sealed = true
	p.mu.Unlock()
	return nil
}

// Len returns the number of handlers.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}

// Handlers returns a copy of the handler chain, head first.
func (p *Pipeline) Handlers() []Handler {
	return append([]Handler(nil), p.snapshot()...)
}

// Release drops every handler, events fired afterwards are ignored.
func (p *Pipeline) Release() {
	p.mu.Lock()
	p.handlers = nil
	p.sealed = true
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handlers
}

// Invoke delivers a lifecycle event, payload is only used by EventChannelWrite.
func (p *Pipeline) Invoke(c Channel, ev Event, payload interface{}) error {
	switch ev {
	case EventNewChannel:
		return p.FireAdded(c)
	case EventInputShutdown:
		return p.FireInputShutdown(c)
	case EventChannelClosed:
		return p.FireClosed(c)
	case EventChannelWrite:
		return p.FireWrite(c, payload)
	}
	return fmt.Errorf("gchannel: unknown pipeline event %d", ev)
}

// FireAdded calls OnAdded on every handler.
func (p *Pipeline) FireAdded(c Channel) error {
	return p.notify(c, "OnAdded", func(h Handler) error { return h.OnAdded(c) })
}

// FireInputShutdown calls OnInputShutdown on every handler.
func (p *Pipeline) FireInputShutdown(c Channel) error {
	return p.notify(c, "OnInputShutdown", func(h Handler) error { return h.OnInputShutdown(c) })
}

// FireClosed calls OnClosed on every handler.
func (p *Pipeline) FireClosed(c Channel) error {
	return p.notify(c, "OnClosed", func(h Handler) error { return h.OnClosed(c) })
}

// FireIdle calls OnIdle on every handler.
func (p *Pipeline) FireIdle(c Channel, state IdleState) error {
	return p.notify(c, "OnIdle", func(h Handler) error { return h.OnIdle(c, state) })
}

// FireException routes err to the OnException hook of every handler.
func (p *Pipeline) FireException(c Channel, err error) error {
	return p.exception(c, p.snapshot(), err)
}

// FireRead feeds raw bytes to the decoders and delivers the decoded messages,
// in order, to the OnRead hook of every handler.
func (p *Pipeline) FireRead(c Channel, raw []byte) error {
	handlers := p.snapshot()
	if len(handlers) == 0 {
		return nil
	}

	msgs := []interface{}{raw}
	for _, h := range handlers {
		out := &Output{}
		for _, msg := range msgs {
			if err := invoke(func() error { return h.Decode(c, msg, out) }); err != nil {
				if err = p.exception(c, handlers, wrap(h, "Decode", err)); err != nil {
					return err
				}
			}
		}
		if msgs = out.msgs; len(msgs) == 0 {
			return nil
		}
	}

	for _, msg := range msgs {
		for _, h := range handlers {
			if err := invoke(func() error { return h.OnRead(c, msg) }); err != nil {
				if err = p.exception(c, handlers, wrap(h, "OnRead", err)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FireWrite passes msg from the tail to the head, each handler observes it in OnWrite
// and transforms it in Encode. The bytes leaving the head are handed to c.WriteRaw.
func (p *Pipeline) FireWrite(c Channel, msg interface{}) error {
	handlers := p.snapshot()
	msgs := []interface{}{msg}
	for i := len(handlers) - 1; i >= 0 && len(msgs) > 0; i-- {
		h := handlers[i]
		out := &Output{}
		for _, m := range msgs {
			if err := invoke(func() error { return h.OnWrite(c, m) }); err != nil {
				if err = p.exception(c, handlers, wrap(h, "OnWrite", err)); err != nil {
					return err
				}
			}
			if err := invoke(func() error { return h.Encode(c, m, out) }); err != nil {
				if err = p.exception(c, handlers, wrap(h, "Encode", err)); err != nil {
					return err
				}
			}
		}
		msgs = out.msgs
	}

	for _, m := range msgs {
		var buf []byte
		switch v := m.(type) {
		case []byte:
			buf = v
		case string:
			buf = []byte(v)
		default:
			err := &errorx.HandlerError{Handler: "head", Hook: "Encode", Err: fmt.Errorf("%w: %T", errorx.ErrUnencodable, m)}
			if err := p.exception(c, handlers, err); err != nil {
				return err
			}
			continue
		}
		if err := c.WriteRaw(buf); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) notify(c Channel, hook string, fn func(Handler) error) error {
	handlers := p.snapshot()
	for _, h := range handlers {
		h := h
		if err := invoke(func() error { return fn(h) }); err != nil {
			if err = p.exception(c, handlers, wrap(h, hook, err)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) exception(c Channel, handlers []Handler, cause error) error {
	p.logger.Debugf("channel %d: %v", c.ID(), cause)
	for _, h := range handlers {
		if err := invoke(func() error { return h.OnException(c, cause) }); err != nil {
			return err
		}
	}
	return nil
}

func wrap(h Handler, hook string, err error) error {
	return &errorx.HandlerError{Handler: fmt.Sprintf("%T", h), Hook: hook, Err: err}
}

// invoke runs fn, turning a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", errorx.ErrHandlerPanic, r, debug.Stack())
		}
	}()
	return fn()
}

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

package pipeline

import "net"

// Channel is the view of a channel that handlers work with.
type Channel interface {
	// ID returns the unique id of the channel.
	ID() uint64

	// LocalAddr is the channel's local socket address, it fails once the channel is closed.
	LocalAddr() (net.Addr, error)

	// RemoteAddr is the channel's remote peer address, it fails once the channel is closed.
	RemoteAddr() (net.Addr, error)

	// Write passes msg through the outbound path of the pipeline.
	Write(msg interface{}) error

	// WriteRaw enqueues already encoded bytes, bypassing the pipeline.
	WriteRaw(buf []byte) error

	// Close closes the channel.
	Close() error

	// Context returns a user-defined context.
	Context() (ctx interface{})

	// SetContext sets a user-defined context.
	SetContext(ctx interface{})

	// Pipeline returns the handler pipeline of the channel.
	Pipeline() *Pipeline
}

// IdleState tells which direction of a channel went idle.
type IdleState int

const (
	// ReaderIdle means nothing has been read for a while.
	ReaderIdle IdleState = iota
	// WriterIdle means nothing has been written for a while.
	WriterIdle
	// AllIdle means neither reads nor writes happened for a while.
	AllIdle
)

func (s IdleState) String() string {
	switch s {
	case ReaderIdle:
		return "reader-idle"
	case WriterIdle:
		return "writer-idle"
	case AllIdle:
		return "all-idle"
	}
	return "unknown"
}

// Output collects the messages produced by Decode or Encode.
type Output struct {
	msgs []interface{}
}

// Add appends msg to the output.
func (o *Output) Add(msg interface{}) {
	o.msgs = append(o.msgs, msg)
}

// Len returns the number of collected messages.
func (o *Output) Len() int {
	return len(o.msgs)
}

type (
	// Handler represents the callbacks of a protocol handler.
	// Every hook may fail, the error is routed to the OnException hooks of the pipeline.
	Handler interface {
		// OnAdded fires when the channel has been constructed.
		OnAdded(c Channel) error

		// OnClosed fires after the channel has been closed.
		OnClosed(c Channel) error

		// OnInputShutdown fires when the peer shut down its output, right before the channel is closed.
		OnInputShutdown(c Channel) error

		// OnRead fires for every message that made it through all decoders.
		OnRead(c Channel, msg interface{}) error

		// Decode turns in into zero or more messages for the next handler.
		// The first handler receives the raw []byte read from the socket, which is only
		// valid during the call: keep a copy of anything that has to outlive it.
		Decode(c Channel, in interface{}, out *Output) error

		// OnWrite fires when msg passes this handler on its way out.
		OnWrite(c Channel, msg interface{}) error

		// Encode turns msg into zero or more messages for the previous handler.
		// Whatever leaves the head of the pipeline must be []byte or string.
		Encode(c Channel, msg interface{}, out *Output) error

		// OnException fires when a hook of any handler failed. Returning a non-nil error
		// escalates the failure to the caller that fired the event.
		OnException(c Channel, err error) error

		// OnIdle fires when the channel went idle.
		OnIdle(c Channel, state IdleState) error
	}

	// BaseHandler is a built-in implementation of Handler which sets up each method with a default implementation,
	// you can compose it with your own implementation of Handler when you don't want to implement all methods.
	BaseHandler struct{}
)

// OnAdded does nothing.
func (*BaseHandler) OnAdded(Channel) error { return nil }

// OnClosed does nothing.
func (*BaseHandler) OnClosed(Channel) error { return nil }

// OnInputShutdown does nothing.
func (*BaseHandler) OnInputShutdown(Channel) error { return nil }

// OnRead does nothing.
func (*BaseHandler) OnRead(Channel, interface{}) error { return nil }

// Decode passes in through unchanged.
func (*BaseHandler) Decode(_ Channel, in interface{}, out *Output) error {
	out.Add(in)
	return nil
}

// OnWrite does nothing.
func (*BaseHandler) OnWrite(Channel, interface{}) error { return nil }

// Encode passes msg through unchanged.
func (*BaseHandler) Encode(_ Channel, msg interface{}, out *Output) error {
	out.Add(msg)
	return nil
}

// OnException swallows err.
func (*BaseHandler) OnException(Channel, error) error { return nil }

// OnIdle does nothing.
func (*BaseHandler) OnIdle(Channel, IdleState) error { return nil }

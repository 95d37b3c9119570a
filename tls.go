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

// HandshakeCompletedListener is notified once a security handshake finished,
// err is nil when the handshake succeeded.
type HandshakeCompletedListener interface {
	OnHandshakeCompleted(c *Channel, err error)
}

// HandshakeCompletedFunc is an adapter to use an ordinary function as HandshakeCompletedListener.
type HandshakeCompletedFunc func(c *Channel, err error)

// OnHandshakeCompleted calls f(c, err).
func (f HandshakeCompletedFunc) OnHandshakeCompleted(c *Channel, err error) {
	f(c, err)
}

// HandshakeHandler drives a security handshake (TLS, for instance) over a started channel.
// gchannel only decides when the handshake begins, the protocol itself is up to the implementation,
// which reports the outcome to the listener it was given.
type HandshakeHandler interface {
	BeginHandshake(c *Channel, listener HandshakeCompletedListener) error
}

// HandshakeSetup returns the handshake handler of a new channel and the listener it reports to,
// a nil handler means the channel starts without a handshake.
type HandshakeSetup func(c *Channel) (HandshakeHandler, HandshakeCompletedListener)

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

/*
Package gchannel is a completion-driven network channel core. A Channel wraps an asynchronous
socket whose reads and writes report back through completion callbacks, feeds the bytes it reads
into an ordered pipeline of protocol handlers and serializes the bytes those handlers write through
a bounded outbound queue backed by a shared, fixed-capacity chunk pool.

Every channel keeps exactly one read outstanding and at most one write in flight, it observes data
in order, never releases a chunk twice and may be closed any number of times from any goroutine.

Echo server built upon gchannel is shown below:

	package main

	import (
		"log"

		"github.com/panjf2000/gchannel"
		"github.com/panjf2000/gchannel/pipeline"
	)

	type echoHandler struct {
		pipeline.BaseHandler
	}

	func (h *echoHandler) OnRead(c pipeline.Channel, msg interface{}) error {
		return c.Write(msg)
	}

	func main() {
		log.Fatal(gchannel.Serve(func(_ pipeline.Channel, p *pipeline.Pipeline) error {
			return p.AddLast(new(echoHandler))
		}, "tcp://:9000"))
	}
*/
package gchannel

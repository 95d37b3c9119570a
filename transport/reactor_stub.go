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

//go:build !linux
// +build !linux

package transport

import (
	"net"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pool/goroutine"
)

// Reactor is only available on Linux.
type Reactor struct{}

// OpenReactor returns ErrUnsupportedPlatform.
func OpenReactor(*goroutine.Pool) (*Reactor, error) {
	return nil, errorx.ErrUnsupportedPlatform
}

// Socket returns ErrUnsupportedPlatform.
func (*Reactor) Socket(net.Conn) (Socket, error) {
	return nil, errorx.ErrUnsupportedPlatform
}

// Close returns ErrUnsupportedPlatform.
func (*Reactor) Close() error {
	return errorx.ErrUnsupportedPlatform
}

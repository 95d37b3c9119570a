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
	"context"
	"net"
	"sync/atomic"

	"go.uber.org/multierr"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/pipeline"
)

// Client dials channels that share one chunk pool and one worker pool.
type Client struct {
	*engine
	init    pipeline.Initializer
	stopped int32
}

// NewClient creates an instance of Client, init sets up the pipeline of every channel it opens.
func NewClient(init pipeline.Initializer, opts ...Option) (cli *Client, err error) {
	cli = &Client{init: init}
	if cli.engine, err = newEngine(loadOptions(opts...)); err != nil {
		return nil, err
	}
	return
}

// Dial is like net.Dial(), it returns a started channel.
func (cli *Client) Dial(network, address string) (*Channel, error) {
	return cli.DialContext(context.Background(), network, address)
}

// DialContext is like Dial with a context bounding the connect.
func (cli *Client) DialContext(ctx context.Context, network, address string) (*Channel, error) {
	if atomic.LoadInt32(&cli.stopped) == 1 {
		return nil, errorx.ErrChannelClosed
	}
	switch network {
	case "tcp", "tcp4", "tcp6", "udp", "udp4", "udp6", "unix":
	default:
		return nil, errorx.ErrUnsupportedProtocol
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return cli.Enroll(conn)
}

// Enroll converts a net.Conn to a started channel of the client, the channel takes over c.
func (cli *Client) Enroll(c net.Conn) (*Channel, error) {
	if c == nil {
		return nil, errorx.ErrInvalidNetConn
	}
	if atomic.LoadInt32(&cli.stopped) == 1 {
		_ = c.Close()
		return nil, errorx.ErrChannelClosed
	}
	return cli.open(c, cli.init)
}

// CountChannels counts the number of open channels of the client.
func (cli *Client) CountChannels() int {
	return cli.countChannels()
}

// Stop closes every channel of the client and releases its resources.
func (cli *Client) Stop() (err error) {
	if !atomic.CompareAndSwapInt32(&cli.stopped, 0, 1) {
		return nil
	}
	err = multierr.Append(cli.closeChannels(), cli.release())
	logging.Cleanup()
	return
}

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
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/panjf2000/gchannel/internal/socket"
	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/pipeline"
	"github.com/panjf2000/gchannel/pool/chunk"
	"github.com/panjf2000/gchannel/pool/goroutine"
	"github.com/panjf2000/gchannel/transport"
)

// engine holds what the channels of a server or a client share.
type engine struct {
	opts       *Options           // options with engine
	logFlush   func() error       // flushes the log file set up by LogPath
	pool       *chunk.Pool        // chunk pool of every channel
	workers    *goroutine.Pool    // runs the completions
	ownWorkers bool               // workers was created by the engine
	reactor    *transport.Reactor // serves the sockets when UseReactor is set
	channels   sync.Map           // channel id -> *Channel
	count      int32              // number of open channels
}

func newEngine(options *Options) (eng *engine, err error) {
	eng = &engine{opts: options}

	var logger logging.Logger
	if options.LogPath != "" {
		if logger, eng.logFlush, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
			return nil, err
		}
	} else {
		logger = logging.GetDefaultLogger()
	}
	if options.Logger == nil {
		options.Logger = logger
	}

	eng.pool = chunk.NewPool(options.PoolCapacity)
	if eng.workers = options.WorkerPool; eng.workers == nil {
		eng.workers = goroutine.Default()
		eng.ownWorkers = true
	}
	if options.UseReactor {
		if eng.reactor, err = transport.OpenReactor(eng.workers); err != nil {
			_ = eng.release()
			return nil, err
		}
	}
	return
}

// tracker keeps the channel registry of an engine up to date.
type tracker struct {
	pipeline.BaseHandler
	eng *engine
}

func (t *tracker) OnAdded(c pipeline.Channel) error {
	t.eng.channels.Store(c.ID(), c)
	atomic.AddInt32(&t.eng.count, 1)
	return nil
}

func (t *tracker) OnClosed(c pipeline.Channel) error {
	if _, ok := t.eng.channels.LoadAndDelete(c.ID()); ok {
		atomic.AddInt32(&t.eng.count, -1)
	}
	return nil
}

// open wraps conn into a started channel.
func (eng *engine) open(conn net.Conn, init pipeline.Initializer) (*Channel, error) {
	if err := socket.SetTCPOptions(conn, eng.opts.TCPNoDelay == TCPNoDelay, eng.opts.TCPKeepAlive); err != nil {
		eng.opts.Logger.Warnf("failed to set up socket options of %s: %v", conn.RemoteAddr(), err)
	}

	var (
		sock transport.Socket
		err  error
	)
	if eng.reactor != nil {
		if sock, err = eng.reactor.Socket(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	} else {
		sock = transport.NewConnSocket(conn, eng.workers)
	}

	c, err := newChannel(sock, eng.pool, func(ch pipeline.Channel, p *pipeline.Pipeline) error {
		if err := p.AddFirst(&tracker{eng: eng}); err != nil {
			return err
		}
		if init == nil {
			return nil
		}
		return init(ch, p)
	}, eng.opts)
	if err != nil {
		return nil, err
	}
	if err = c.Start(); err != nil {
		return nil, err
	}
	return c, nil
}

func (eng *engine) countChannels() int {
	return int(atomic.LoadInt32(&eng.count))
}

func (eng *engine) closeChannels() (err error) {
	eng.channels.Range(func(_, v interface{}) bool {
		err = multierr.Append(err, v.(*Channel).Close())
		return true
	})
	return
}

func (eng *engine) release() (err error) {
	if eng.reactor != nil {
		err = multierr.Append(err, eng.reactor.Close())
	}
	if eng.ownWorkers {
		eng.workers.Release()
	}
	if eng.logFlush != nil {
		err = multierr.Append(err, eng.logFlush())
	}
	return
}

func parseProtoAddr(addr string) (network, address string) {
	network, address = "tcp", addr
	if i := strings.Index(addr, "://"); i >= 0 {
		network, address = strings.ToLower(addr[:i]), addr[i+3:]
	}
	return
}

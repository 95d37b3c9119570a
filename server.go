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
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/pipeline"
)

var (
	allServers sync.Map

	// shutdownPollInterval is how often we poll to check whether server has been shut down during gchannel.Stop().
	shutdownPollInterval = 100 * time.Millisecond
)

type server struct {
	*engine
	ln         net.Listener         // the listener for accepting new connections
	protoAddr  string               // the address the server was started with
	init       pipeline.Initializer // sets up the pipeline of every accepted channel
	once       sync.Once            // make sure only signalShutdown once
	inShutdown int32                // whether the server has been shut down
}

func (svr *server) isInShutdown() bool {
	return atomic.LoadInt32(&svr.inShutdown) == 1
}

// signalShutdown stops accepting, the accept loop takes care of the rest.
func (svr *server) signalShutdown() {
	svr.once.Do(func() {
		if err := svr.ln.Close(); err != nil {
			svr.opts.Logger.Warnf("failed to close the listener of %s: %v", svr.protoAddr, err)
		}
	})
}

func (svr *server) acceptLoop() error {
	var tempDelay time.Duration
	for {
		conn, err := svr.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				svr.opts.Logger.Warnf("accept error: %v, retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		if _, err = svr.open(conn, svr.init); err != nil {
			svr.opts.Logger.Errorf("failed to open a channel for %s: %v", conn.RemoteAddr(), err)
		}
	}
}

// Serve starts handling connections on the specified address, init sets up the pipeline of
// every accepted channel. It blocks until the server is stopped by Stop.
//
// Address should use a scheme prefix and be formatted
// like `tcp://192.168.0.10:9851` or `unix://socket`.
// Valid network schemes:
//
//	tcp   - bind to both IPv4 and IPv6
//	tcp4  - IPv4
//	tcp6  - IPv6
//	unix  - Unix Domain Socket
//
// The "tcp" network scheme is assumed when one is not specified.
func Serve(init pipeline.Initializer, protoAddr string, opts ...Option) (err error) {
	options := loadOptions(opts...)

	logging.Debugf("default logging level is %s", logging.LogLevel())

	network, addr := parseProtoAddr(protoAddr)
	switch network {
	case "tcp", "tcp4", "tcp6":
	case "unix":
		_ = os.RemoveAll(addr)
	default:
		return errorx.ErrUnsupportedProtocol
	}

	svr := &server{protoAddr: protoAddr, init: init}
	if svr.engine, err = newEngine(options); err != nil {
		return
	}
	defer func() {
		if rerr := svr.release(); rerr != nil {
			options.Logger.Warnf("failed to release the resources of %s: %v", protoAddr, rerr)
		}
		logging.Cleanup()
	}()

	if svr.ln, err = net.Listen(network, addr); err != nil {
		return
	}
	if _, loaded := allServers.LoadOrStore(protoAddr, svr); loaded {
		_ = svr.ln.Close()
		return errorx.ErrServerInShutdown
	}
	defer allServers.Delete(protoAddr)
	options.Logger.Infof("gchannel server is listening on %s (%s)", svr.ln.Addr(), network)

	err = svr.acceptLoop()
	if cerr := svr.closeChannels(); cerr != nil {
		options.Logger.Debugf("errors while closing the channels of %s: %v", protoAddr, cerr)
	}
	atomic.StoreInt32(&svr.inShutdown, 1)
	return
}

// CountChannels counts the number of open channels of the server listening on protoAddr,
// -1 if there is no such server.
func CountChannels(protoAddr string) int {
	if s, ok := allServers.Load(protoAddr); ok {
		return s.(*server).countChannels()
	}
	return -1
}

// Stop gracefully shuts down the server listening on protoAddr: it stops accepting, closes every channel
// and waits until Serve is about to return, or until ctx is done.
func Stop(ctx context.Context, protoAddr string) error {
	s, ok := allServers.Load(protoAddr)
	if !ok {
		return errorx.ErrServerInShutdown
	}
	svr := s.(*server)
	if svr.isInShutdown() {
		return errorx.ErrServerInShutdown
	}
	svr.signalShutdown()

	// Serve removes its own entry from allServers.
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if svr.isInShutdown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

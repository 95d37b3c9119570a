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
	"time"

	"github.com/panjf2000/gchannel/logging"
	"github.com/panjf2000/gchannel/pool/goroutine"
)

const (
	// DefaultReadBufferSize is the capacity of the read chunk of every channel.
	DefaultReadBufferSize = 64 * 1024
	// DefaultPoolBlockTimeout bounds how long a blocking allocation waits for pool capacity.
	DefaultPoolBlockTimeout = time.Second
	// DefaultOutboundQueueCapacity is the number of pending writes a channel queues at most.
	DefaultOutboundQueueCapacity = 1024
	// DefaultPoolCapacity is the capacity of the chunk pool a server or client creates.
	DefaultPoolCapacity = 64 * 1024 * 1024
)

// TCPSocketOpt is the type of TCP socket options.
type TCPSocketOpt int

// Available TCP socket options.
const (
	TCPNoDelay TCPSocketOpt = iota
	TCPDelay
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.PoolBlockTimeout <= 0 {
		opts.PoolBlockTimeout = DefaultPoolBlockTimeout
	}
	if opts.OutboundQueueCapacity <= 0 {
		opts.OutboundQueueCapacity = DefaultOutboundQueueCapacity
	}
	if opts.PoolCapacity <= 0 {
		opts.PoolCapacity = DefaultPoolCapacity
	}
	return opts
}

// Options are configurations for channels, servers and clients.
type Options struct {
	// ReadBufferSize is the capacity of the chunk every channel reads into,
	// a decoder never sees more than this many bytes in one piece.
	ReadBufferSize int

	// PoolBlockTimeout is how long an allocation from the chunk pool may wait for capacity.
	PoolBlockTimeout time.Duration

	// OutboundQueueCapacity limits the number of pending writes of a channel.
	OutboundQueueCapacity int

	// DisableKeepAlive makes a channel close itself once its outbound queue drained after a write,
	// by default channels stay open.
	DisableKeepAlive bool

	// BlockingWrite makes Write wait up to PoolBlockTimeout for pool capacity
	// instead of failing right away with ErrPoolExhausted.
	BlockingWrite bool

	// PoolCapacity is the total number of bytes the chunk pool of a server or client may hand out.
	PoolCapacity int

	// TCPKeepAlive sets up a duration for (SO_KEEPALIVE) socket option.
	TCPKeepAlive time.Duration

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	//
	// The default is true (no delay), meaning that data is sent
	// as soon as possible after a write operation.
	TCPNoDelay TCPSocketOpt

	// UseReactor serves the sockets of a server or client with the epoll reactor on Linux
	// instead of one worker task per operation.
	UseReactor bool

	// WorkerPool runs the completion callbacks, the default ants pool is used when it is nil.
	WorkerPool *goroutine.Pool

	// LogPath the local path where logs will be written, this is the easiest way to set up logging,
	// gchannel instantiates a default uber-go/zap logger with this given log path, you are also allowed to employ
	// you own logger during the lifetime by implementing the following log.Logger interface.
	//
	// Note that this option can be overridden by the option Logger.
	LogPath string

	// LogLevel indicates the logging level, it should be used along with LogPath.
	LogLevel logging.Level

	// Logger is the customized logger for logging info, if it is not set,
	// then gchannel will use the default logger powered by go.uber.org/zap.
	Logger logging.Logger

	// Handshake sets up the handshake of every new channel before it starts.
	Handshake HandshakeSetup
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithReadBufferSize sets up the capacity of the read chunk.
func WithReadBufferSize(size int) Option {
	return func(opts *Options) {
		opts.ReadBufferSize = size
	}
}

// WithPoolBlockTimeout sets up how long allocations wait for pool capacity.
func WithPoolBlockTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.PoolBlockTimeout = timeout
	}
}

// WithOutboundQueueCapacity sets up the bound of the outbound queue.
func WithOutboundQueueCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.OutboundQueueCapacity = capacity
	}
}

// WithKeepAlive sets up whether channels stay open after their outbound queue drained.
func WithKeepAlive(keepAlive bool) Option {
	return func(opts *Options) {
		opts.DisableKeepAlive = !keepAlive
	}
}

// WithBlockingWrite sets up whether writes wait for pool capacity.
func WithBlockingWrite(blocking bool) Option {
	return func(opts *Options) {
		opts.BlockingWrite = blocking
	}
}

// WithPoolCapacity sets up the capacity of the chunk pool of a server or client.
func WithPoolCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.PoolCapacity = capacity
	}
}

// WithTCPKeepAlive sets up the SO_KEEPALIVE socket option with duration.
func WithTCPKeepAlive(tcpKeepAlive time.Duration) Option {
	return func(opts *Options) {
		opts.TCPKeepAlive = tcpKeepAlive
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(tcpNoDelay TCPSocketOpt) Option {
	return func(opts *Options) {
		opts.TCPNoDelay = tcpNoDelay
	}
}

// WithReactor sets up whether sockets are served by the epoll reactor.
func WithReactor(useReactor bool) Option {
	return func(opts *Options) {
		opts.UseReactor = useReactor
	}
}

// WithWorkerPool sets up the pool running completion callbacks.
func WithWorkerPool(pool *goroutine.Pool) Option {
	return func(opts *Options) {
		opts.WorkerPool = pool
	}
}

// WithLogPath is an option to set up the local path of log file.
func WithLogPath(fileName string) Option {
	return func(opts *Options) {
		opts.LogPath = fileName
	}
}

// WithLogLevel is an option to set up the logging level.
func WithLogLevel(lvl logging.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = lvl
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithHandshake sets up the handshake handler and listener of every channel a server accepts
// or a client dials, the handshake begins right after the first read is armed.
func WithHandshake(setup HandshakeSetup) Option {
	return func(opts *Options) {
		opts.Handshake = setup
	}
}

package gchannel

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/panjf2000/gchannel/codec"
	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pipeline"
)

type lineEcho struct {
	pipeline.BaseHandler
}

func (*lineEcho) OnRead(c pipeline.Channel, msg interface{}) error {
	return c.Write(msg)
}

type replyCollector struct {
	pipeline.BaseHandler
	mu      sync.Mutex
	replies map[uint64][]string
	total   int
}

func (h *replyCollector) OnRead(c pipeline.Channel, msg interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.replies == nil {
		h.replies = make(map[uint64][]string)
	}
	h.replies[c.ID()] = append(h.replies[c.ID()], msg.(string))
	h.total++
	return nil
}

func (h *replyCollector) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *replyCollector) of(id uint64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.replies[id]...)
}

func startEchoServer(t *testing.T, g *errgroup.Group, protoAddr string, opts ...Option) {
	t.Helper()
	g.Go(func() error {
		return Serve(func(_ pipeline.Channel, p *pipeline.Pipeline) error {
			return p.AddLast(codec.NewLineBasedFrameCodec(), new(lineEcho))
		}, protoAddr, opts...)
	})
	require.Eventually(t, func() bool { return CountChannels(protoAddr) >= 0 },
		3*time.Second, 10*time.Millisecond, "server %s did not come up", protoAddr)
}

func TestServeEcho(t *testing.T) {
	t.Run("tcp", func(t *testing.T) {
		testServeEcho(t, "tcp://127.0.0.1:9781")
	})
	t.Run("tcp-blocking-write", func(t *testing.T) {
		testServeEcho(t, "tcp://127.0.0.1:9782", WithBlockingWrite(true), WithPoolCapacity(1<<20))
	})
	t.Run("unix", func(t *testing.T) {
		testServeEcho(t, "unix://"+filepath.Join(t.TempDir(), "echo.sock"))
	})
	t.Run("tcp-reactor", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("the reactor is only available on linux")
		}
		testServeEcho(t, "tcp://127.0.0.1:9783", WithReactor(true), WithReadBufferSize(512))
	})
}

func testServeEcho(t *testing.T, protoAddr string, opts ...Option) {
	var g errgroup.Group
	startEchoServer(t, &g, protoAddr, opts...)

	collector := new(replyCollector)
	cli, err := NewClient(func(_ pipeline.Channel, p *pipeline.Pipeline) error {
		return p.AddLast(codec.NewLineBasedFrameCodec(), codec.NewStringCodec(), collector)
	}, opts...)
	require.NoError(t, err)

	const conns, msgs = 4, 100
	network, addr := parseProtoAddr(protoAddr)
	channels := make([]*Channel, conns)
	for i := range channels {
		channels[i], err = cli.Dial(network, addr)
		require.NoError(t, err)
	}
	assert.Equal(t, conns, cli.CountChannels())
	require.Eventually(t, func() bool { return CountChannels(protoAddr) == conns },
		3*time.Second, 10*time.Millisecond)

	var wg errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		wg.Go(func() error {
			for j := 0; j < msgs; j++ {
				if err := ch.Write(fmt.Sprintf("%d-%d", i, j)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, wg.Wait())
	require.Eventually(t, func() bool { return collector.count() == conns*msgs },
		10*time.Second, 10*time.Millisecond, "got %d replies", collector.count())

	for i, ch := range channels {
		expected := make([]string, msgs)
		for j := range expected {
			expected[j] = fmt.Sprintf("%d-%d", i, j)
		}
		assert.Equal(t, expected, collector.of(ch.ID()), "replies of channel %d are out of order", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Stop(ctx, protoAddr))
	require.NoError(t, g.Wait())
	assert.Equal(t, -1, CountChannels(protoAddr))

	for _, ch := range channels {
		select {
		case <-ch.Done():
		case <-time.After(3 * time.Second):
			t.Fatalf("channel %d was not closed after the server went away", ch.ID())
		}
	}
	assert.Eventually(t, func() bool { return cli.CountChannels() == 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, cli.Stop())
}

type recordingHandshake struct {
	mu  sync.Mutex
	ids []uint64
}

func (h *recordingHandshake) BeginHandshake(c *Channel, l HandshakeCompletedListener) error {
	h.mu.Lock()
	h.ids = append(h.ids, c.ID())
	h.mu.Unlock()
	if l != nil {
		l.OnHandshakeCompleted(c, nil)
	}
	return nil
}

func (h *recordingHandshake) began() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.ids...)
}

func TestServeHandshake(t *testing.T) {
	const protoAddr = "tcp://127.0.0.1:9788"
	completed := make(chan uint64, 4)
	listener := HandshakeCompletedFunc(func(c *Channel, err error) {
		if err == nil {
			completed <- c.ID()
		}
	})
	setup := func(h HandshakeHandler) HandshakeSetup {
		return func(*Channel) (HandshakeHandler, HandshakeCompletedListener) { return h, listener }
	}
	serverSide, clientSide := new(recordingHandshake), new(recordingHandshake)

	var g errgroup.Group
	startEchoServer(t, &g, protoAddr, WithHandshake(setup(serverSide)))

	cli, err := NewClient(func(pipeline.Channel, *pipeline.Pipeline) error { return nil }, WithHandshake(setup(clientSide)))
	require.NoError(t, err)
	ch, err := cli.Dial("tcp", "127.0.0.1:9788")
	require.NoError(t, err)

	assert.Equal(t, []uint64{ch.ID()}, clientSide.began(), "the handshake begins before Dial returns")
	require.Eventually(t, func() bool { return len(serverSide.began()) == 1 }, 3*time.Second, 5*time.Millisecond)
	for i := 0; i < 2; i++ {
		select {
		case <-completed:
		case <-time.After(3 * time.Second):
			t.Fatal("handshake listener was not notified")
		}
	}

	require.NoError(t, cli.Stop())
	require.NoError(t, Stop(context.Background(), protoAddr))
	require.NoError(t, g.Wait())
}

func TestServeUnsupportedProtocol(t *testing.T) {
	err := Serve(func(pipeline.Channel, *pipeline.Pipeline) error { return nil }, "udp://127.0.0.1:9784")
	assert.ErrorIs(t, err, errorx.ErrUnsupportedProtocol)
}

func TestServeTwice(t *testing.T) {
	const protoAddr = "tcp://127.0.0.1:9785"
	var g errgroup.Group
	startEchoServer(t, &g, protoAddr)

	err := Serve(func(pipeline.Channel, *pipeline.Pipeline) error { return nil }, protoAddr)
	assert.Error(t, err)

	require.NoError(t, Stop(context.Background(), protoAddr))
	require.NoError(t, g.Wait())
	assert.ErrorIs(t, Stop(context.Background(), protoAddr), errorx.ErrServerInShutdown)
}

func TestStopIdleServer(t *testing.T) {
	const protoAddr = "tcp://127.0.0.1:9787"
	for i := 0; i < 3; i++ {
		var g errgroup.Group
		startEchoServer(t, &g, protoAddr)
		assert.Equal(t, 0, CountChannels(protoAddr))

		require.NoError(t, Stop(context.Background(), protoAddr), "round %d", i)
		require.NoError(t, g.Wait())
		assert.Equal(t, -1, CountChannels(protoAddr))
	}
}

func TestStopUnknownServer(t *testing.T) {
	assert.ErrorIs(t, Stop(context.Background(), "tcp://127.0.0.1:9786"), errorx.ErrServerInShutdown)
	assert.Equal(t, -1, CountChannels("tcp://127.0.0.1:9786"))
}

func TestParseProtoAddr(t *testing.T) {
	network, addr := parseProtoAddr("TCP4://127.0.0.1:80")
	assert.Equal(t, "tcp4", network)
	assert.Equal(t, "127.0.0.1:80", addr)

	network, addr = parseProtoAddr("unix:///tmp/TestDir/echo.sock")
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/TestDir/echo.sock", addr)

	network, addr = parseProtoAddr(":9000")
	assert.Equal(t, "tcp", network)
	assert.Equal(t, ":9000", addr)
}

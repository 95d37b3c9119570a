package codec

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pipeline"
)

type testChannel struct {
	mu      sync.Mutex
	p       *pipeline.Pipeline
	written [][]byte
	closed  bool
}

func newTestChannel(t *testing.T, handlers ...pipeline.Handler) (*testChannel, *collector) {
	t.Helper()
	c := &testChannel{p: pipeline.New(nil)}
	col := new(collector)
	require.NoError(t, c.p.Init(c, func(_ pipeline.Channel, p *pipeline.Pipeline) error {
		return p.AddLast(append(handlers, col)...)
	}))
	return c, col
}

func (c *testChannel) ID() uint64                    { return 7 }
func (c *testChannel) LocalAddr() (net.Addr, error)  { return nil, nil }
func (c *testChannel) RemoteAddr() (net.Addr, error) { return nil, nil }
func (c *testChannel) Write(msg interface{}) error   { return c.p.FireWrite(c, msg) }
func (c *testChannel) Context() interface{}          { return nil }
func (c *testChannel) SetContext(interface{})        {}
func (c *testChannel) Pipeline() *pipeline.Pipeline  { return c.p }

func (c *testChannel) read(t *testing.T, chunks ...string) {
	t.Helper()
	for _, s := range chunks {
		require.NoError(t, c.p.FireRead(c, []byte(s)))
	}
}

func (c *testChannel) WriteRaw(buf []byte) error {
	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), buf...))
	c.mu.Unlock()
	return nil
}

func (c *testChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.p.FireClosed(c)
}

type collector struct {
	pipeline.BaseHandler
	mu     sync.Mutex
	msgs   []interface{}
	errs   []error
	idles  []pipeline.IdleState
	closed bool
}

func (h *collector) OnRead(_ pipeline.Channel, msg interface{}) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	return nil
}

func (h *collector) OnException(_ pipeline.Channel, err error) error {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	return nil
}

func (h *collector) OnIdle(_ pipeline.Channel, state pipeline.IdleState) error {
	h.mu.Lock()
	h.idles = append(h.idles, state)
	h.mu.Unlock()
	return nil
}

func (h *collector) snapshot() ([]interface{}, []error, []pipeline.IdleState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]interface{}(nil), h.msgs...), append([]error(nil), h.errs...), append([]pipeline.IdleState(nil), h.idles...)
}

func TestLineBasedFrameCodec(t *testing.T) {
	c, col := newTestChannel(t, NewLineBasedFrameCodec())
	c.read(t, "hel", "lo\r\nwor", "ld\n", "tail")
	msgs, errs, _ := col.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, []interface{}{[]byte("hello"), []byte("world")}, msgs)

	require.NoError(t, c.Write("ping"))
	require.NoError(t, c.Write([]byte("pong")))
	assert.Equal(t, [][]byte{[]byte("ping\n"), []byte("pong\n")}, c.written)
	require.NoError(t, c.Close())
}

func TestDelimiterBasedFrameCodec(t *testing.T) {
	c, col := newTestChannel(t, NewDelimiterBasedFrameCodec('|'))
	c.read(t, "a|bb|", "ccc", "|")
	msgs, _, _ := col.snapshot()
	assert.Equal(t, []interface{}{[]byte("a"), []byte("bb"), []byte("ccc")}, msgs)

	require.NoError(t, c.Write("d"))
	assert.Equal(t, [][]byte{[]byte("d|")}, c.written)
}

func TestFixedLengthFrameCodec(t *testing.T) {
	c, col := newTestChannel(t, NewFixedLengthFrameCodec(10))
	c.read(t, "0123456789abcdefghij0123", "456789")
	msgs, _, _ := col.snapshot()
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("0123456789"), msgs[0])
	assert.Equal(t, []byte("abcdefghij"), msgs[1])
	assert.Equal(t, []byte("0123456789"), msgs[2])

	require.NoError(t, c.Write("0123456789"))
	require.NoError(t, c.Write("short"))
	_, errs, _ := col.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errorx.ErrInvalidFixedLength)
	assert.Len(t, c.written, 1)
}

func TestLengthFieldBasedFrameCodec(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 8} {
		enc := EncoderConfig{ByteOrder: binary.BigEndian, LengthFieldLength: size}
		dec := DecoderConfig{ByteOrder: binary.BigEndian, LengthFieldLength: size, InitialBytesToStrip: size}
		c, col := newTestChannel(t, NewLengthFieldBasedFrameCodec(enc, dec))

		require.NoError(t, c.Write("hello"))
		require.NoError(t, c.Write("gchannel"))
		require.Len(t, c.written, 2)
		assert.Len(t, c.written[0], size+5)

		stream := append(append([]byte(nil), c.written[0]...), c.written[1]...)
		for i := range stream {
			require.NoError(t, c.p.FireRead(c, stream[i:i+1]))
		}
		msgs, errs, _ := col.snapshot()
		assert.Empty(t, errs)
		assert.Equal(t, []interface{}{[]byte("hello"), []byte("gchannel")}, msgs, "length field of %d bytes", size)
	}
}

func TestLengthFieldBasedFrameCodecHeader(t *testing.T) {
	enc := EncoderConfig{ByteOrder: binary.LittleEndian, LengthFieldLength: 2, LengthIncludesLengthFieldLength: true}
	dec := DecoderConfig{ByteOrder: binary.LittleEndian, LengthFieldLength: 2, LengthAdjustment: -2}
	c, col := newTestChannel(t, NewLengthFieldBasedFrameCodec(enc, dec))
	require.NoError(t, c.Write("abc"))
	assert.Equal(t, []byte{5, 0, 'a', 'b', 'c'}, c.written[0])

	require.NoError(t, c.p.FireRead(c, c.written[0]))
	msgs, _, _ := col.snapshot()
	assert.Equal(t, []interface{}{[]byte{5, 0, 'a', 'b', 'c'}}, msgs)

	bad, badCol := newTestChannel(t, NewLengthFieldBasedFrameCodec(EncoderConfig{LengthFieldLength: 5}, DecoderConfig{LengthFieldLength: 5}))
	require.NoError(t, bad.Write("x"))
	bad.read(t, "0123456")
	_, errs, _ := badCol.snapshot()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], errorx.ErrUnsupportedLength)
	assert.ErrorIs(t, errs[1], errorx.ErrUnsupportedLength)
}

func TestFrameTooLong(t *testing.T) {
	codec := NewLineBasedFrameCodec()
	codec.SetMaxFrameLength(8)
	c, col := newTestChannel(t, codec)
	c.read(t, "0123456789")
	c.read(t, "ok\n")
	msgs, errs, _ := col.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errorx.ErrFrameTooLong)
	assert.Equal(t, []interface{}{[]byte("ok")}, msgs)
}

func TestStringCodec(t *testing.T) {
	c, col := newTestChannel(t, NewLineBasedFrameCodec(), NewStringCodec())
	c.read(t, "one\ntwo\n")
	msgs, _, _ := col.snapshot()
	assert.Equal(t, []interface{}{"one", "two"}, msgs)

	require.NoError(t, c.Write("three"))
	assert.Equal(t, [][]byte{[]byte("three\n")}, c.written)
}

func TestDatagramPacketEncoder(t *testing.T) {
	c, col := newTestChannel(t, NewDatagramPacketEncoder())
	require.NoError(t, c.Write([]byte("datagram")))
	require.NoError(t, c.Write(3.14))
	assert.Equal(t, [][]byte{[]byte("datagram")}, c.written)
	_, errs, _ := col.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errorx.ErrUnencodable)
}

func TestIdleStateHandler(t *testing.T) {
	idle := NewIdleStateHandler(30*time.Millisecond, 0, 0)
	c, col := newTestChannel(t, idle)
	require.NoError(t, c.p.FireAdded(c))

	assert.Eventually(t, func() bool {
		_, _, idles := col.snapshot()
		return len(idles) > 0
	}, time.Second, 5*time.Millisecond)
	_, _, idles := col.snapshot()
	assert.Equal(t, pipeline.ReaderIdle, idles[0])

	require.NoError(t, c.Close())
	time.Sleep(10 * time.Millisecond)
	_, _, idles = col.snapshot()
	n := len(idles)
	time.Sleep(100 * time.Millisecond)
	_, _, idles = col.snapshot()
	assert.Len(t, idles, n, "no idle event after close")
}

func TestIdleStateHandlerActivity(t *testing.T) {
	idle := NewIdleStateHandler(0, 0, 60*time.Millisecond)
	c, col := newTestChannel(t, idle)
	require.NoError(t, c.p.FireAdded(c))
	defer c.Close()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.read(t, "x")
		time.Sleep(5 * time.Millisecond)
	}
	_, _, idles := col.snapshot()
	assert.Empty(t, idles, "a busy channel is never idle")
}

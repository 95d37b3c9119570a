package outbound

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorx "github.com/panjf2000/gchannel/errors"
	"github.com/panjf2000/gchannel/pool/chunk"
)

func TestWriterFIFO(t *testing.T) {
	pool := chunk.NewPool(1024)
	var flushed int32
	w := New(pool, func() { atomic.AddInt32(&flushed, 1) }, Config{Capacity: 4})

	for _, s := range []string{"a", "bb", "ccc"} {
		require.NoError(t, w.Enqueue([]byte(s)))
	}
	assert.NoError(t, w.Enqueue(nil), "empty writes are ignored")
	assert.EqualValues(t, 3, atomic.LoadInt32(&flushed))
	assert.Equal(t, 3, w.Len())
	assert.EqualValues(t, 6, pool.Stats().InUse)

	for _, s := range []string{"a", "bb", "ccc"} {
		c, ok := w.Poll()
		require.True(t, ok)
		assert.Equal(t, s, string(c.Bytes()))
		require.NoError(t, c.Release())
	}
	_, ok := w.Poll()
	assert.False(t, ok)
	assert.Zero(t, pool.Stats().InUse)
}

func TestWriterQueueFull(t *testing.T) {
	pool := chunk.NewPool(1024)
	w := New(pool, nil, Config{Capacity: 2})
	require.NoError(t, w.Enqueue([]byte("1")))
	require.NoError(t, w.Enqueue([]byte("2")))
	assert.ErrorIs(t, w.Enqueue([]byte("3")), errorx.ErrQueueFull)
	assert.EqualValues(t, 2, pool.Stats().InUse)
	require.NoError(t, w.Close())
}

func TestWriterPoolExhausted(t *testing.T) {
	pool := chunk.NewPool(8)
	w := New(pool, nil, Config{Capacity: 8})
	require.NoError(t, w.Enqueue([]byte("12345678")))
	assert.ErrorIs(t, w.Enqueue([]byte("9")), errorx.ErrPoolExhausted)

	bw := New(pool, nil, Config{Capacity: 8, Mode: Blocking, BlockTimeout: time.Second})
	done := make(chan error, 1)
	go func() { done <- bw.Enqueue([]byte("9")) }()

	c, ok := w.Poll()
	require.True(t, ok)
	require.NoError(t, c.Release())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking enqueue was not woken up")
	}
	require.NoError(t, bw.Close())
	require.NoError(t, w.Close())
}

func TestWriterClose(t *testing.T) {
	pool := chunk.NewPool(1024)
	w := New(pool, nil, Config{})
	require.NoError(t, w.Enqueue([]byte("pending")))
	require.NoError(t, w.Enqueue([]byte("writes")))

	require.NoError(t, w.Close())
	assert.True(t, w.IsClosed())
	assert.Zero(t, pool.Stats().InUse, "close must give every pending chunk back")
	assert.NoError(t, w.Close(), "close is idempotent")
	assert.ErrorIs(t, w.Enqueue([]byte("late")), errorx.ErrWriterClosed)
	_, ok := w.Poll()
	assert.False(t, ok)
	assert.Zero(t, pool.Stats().StaleReleases)
}

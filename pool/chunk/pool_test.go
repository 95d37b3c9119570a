package chunk

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	errorx "github.com/panjf2000/gchannel/errors"
)

func TestPoolAllocateAndRelease(t *testing.T) {
	p := NewPool(1024)

	c, err := p.Allocate(100, 0)
	require.NoError(t, err)
	assert.True(t, c.Valid())
	assert.EqualValues(t, 100, c.Cap())
	assert.EqualValues(t, 924, p.Available())

	require.NoError(t, c.Release())
	assert.False(t, c.Valid(), "released handle must be stale")
	assert.EqualValues(t, 1024, p.Available())

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Allocations)
	assert.EqualValues(t, 1, stats.Releases)
	assert.EqualValues(t, 0, stats.Outstanding)
}

func TestPoolInvalidSizes(t *testing.T) {
	p := NewPool(64)
	_, err := p.Allocate(0, 0)
	assert.ErrorIs(t, err, errorx.ErrInvalidChunkSize)
	_, err = p.Allocate(65, time.Second)
	assert.ErrorIs(t, err, errorx.ErrChunkTooLarge)
}

func TestPoolNonBlockingExhausted(t *testing.T) {
	p := NewPool(64)
	c, err := p.Allocate(64, 0)
	require.NoError(t, err)
	_, err = p.Allocate(1, 0)
	assert.ErrorIs(t, err, errorx.ErrPoolExhausted)

	start := time.Now()
	_, err = p.Allocate(1, 20*time.Millisecond)
	assert.ErrorIs(t, err, errorx.ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.NoError(t, c.Release())
}

func TestPoolAllocateContextCanceled(t *testing.T) {
	p := NewPool(8)
	c, err := p.Allocate(8, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.AllocateContext(ctx, 8)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, c.Release())
}

func TestPoolDoubleRelease(t *testing.T) {
	p := NewPool(128)
	c, err := p.Allocate(64, 0)
	require.NoError(t, err)
	dup := c

	require.NoError(t, c.Release())
	assert.ErrorIs(t, c.Release(), errorx.ErrStaleChunk)
	assert.ErrorIs(t, p.Deallocate(dup), errorx.ErrStaleChunk)
	assert.EqualValues(t, 2, p.Stats().StaleReleases)
	assert.EqualValues(t, 128, p.Available(), "stale releases must not give capacity back")

	// The slot is recycled under a new generation, the old handle stays stale.
	c2, err := p.Allocate(32, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Slots)
	assert.False(t, dup.Valid())
	assert.Nil(t, dup.Bytes())
	dup.Produce(10)
	assert.Zero(t, c2.Len(), "stale handle must not mutate the new owner")
	assert.ErrorIs(t, p.Deallocate(dup), errorx.ErrStaleChunk)
	assert.EqualValues(t, 96, p.Available())
	require.NoError(t, c2.Release())
}

func TestPoolForeignChunk(t *testing.T) {
	p1, p2 := NewPool(16), NewPool(16)
	c, err := p1.Allocate(8, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, p2.Deallocate(c), errorx.ErrStaleChunk)
	assert.ErrorIs(t, Chunk{}.Release(), errorx.ErrStaleChunk)
	require.NoError(t, c.Release())
}

// Caller 2 waits for the capacity released by caller 1.
func TestPoolBlockingAllocateIsWokenUp(t *testing.T) {
	p := NewPool(1024)
	c1, err := p.Allocate(600, 100*time.Millisecond)
	require.NoError(t, err)

	allocated := make(chan error, 1)
	var c2 Chunk
	go func() {
		var err error
		c2, err = p.Allocate(600, 100*time.Millisecond)
		allocated <- err
	}()

	select {
	case err := <-allocated:
		t.Fatalf("second allocation must block, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, c1.Release())
	select {
	case err := <-allocated:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second allocation was not woken up")
	}
	assert.EqualValues(t, 600, c2.Cap())
	require.NoError(t, c2.Release())
}

func TestPoolConcurrentInvariant(t *testing.T) {
	const capacity = 4096
	p := NewPool(capacity)

	var inUse, peak int64
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		seed := int64(i)
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			for j := 0; j < 500; j++ {
				size := r.Intn(capacity/4) + 1
				c, err := p.Allocate(size, time.Second)
				if err != nil {
					return err
				}
				now := atomic.AddInt64(&inUse, int64(size))
				for {
					old := atomic.LoadInt64(&peak)
					if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
						break
					}
				}
				if used := p.Stats().InUse; used > capacity {
					t.Errorf("pool accounts %d bytes in use, exceeding %d", used, capacity)
				}
				if r.Intn(4) == 0 {
					time.Sleep(time.Duration(r.Intn(50)) * time.Microsecond)
				}
				atomic.AddInt64(&inUse, -int64(size))
				if err := c.Release(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(capacity))

	stats := p.Stats()
	assert.Zero(t, stats.InUse)
	assert.Zero(t, stats.Outstanding)
	assert.Zero(t, stats.StaleReleases)
	assert.Equal(t, stats.Allocations, stats.Releases)
}

func TestPoolReusesBuffers(t *testing.T) {
	p := NewPool(1 << 10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c, err := p.Allocate(64, time.Second)
				if assert.NoError(t, err) {
					assert.NoError(t, c.Release())
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Stats().Slots, 8)
}

func TestPoolSizeClassReuse(t *testing.T) {
	p := NewPool(1 << 10)
	c, err := p.Allocate(100, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Cap())
	require.NoError(t, c.Release())

	// The first backing array was rounded up to 128 bytes, a 120-byte request fits in it.
	c, err = p.Allocate(120, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, c.Cap())
	assert.Equal(t, 1, p.Stats().Slots)
	assert.EqualValues(t, 1<<10-120, p.Available())
	require.NoError(t, c.Release())
}

func TestPoolSizeClassLookup(t *testing.T) {
	p := NewPool(1 << 10)
	small, err := p.Allocate(100, 0)
	require.NoError(t, err)
	require.NoError(t, small.Release())

	large, err := p.Allocate(300, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stats().Slots, "a 128-byte slot cannot hold 300 bytes")

	tiny, err := p.Allocate(50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stats().Slots, "the idle 128-byte slot serves a 50-byte request")
	assert.Zero(t, p.Stats().Idle)

	require.NoError(t, large.Release())
	require.NoError(t, tiny.Release())
	assert.Equal(t, 2, p.Stats().Idle)
}

func TestPoolIdleSlotsBounded(t *testing.T) {
	p := NewPool(1 << 20)
	chunks := make([]Chunk, MaxIdleSlots+100)
	for i := range chunks {
		c, err := p.Allocate(8, 0)
		require.NoError(t, err)
		chunks[i] = c
	}
	assert.Equal(t, len(chunks), p.Stats().Slots)

	for _, c := range chunks {
		require.NoError(t, c.Release())
	}
	st := p.Stats()
	assert.Equal(t, MaxIdleSlots, st.Idle)
	assert.Equal(t, MaxIdleSlots, st.Slots)
	assert.Zero(t, st.InUse)
	assert.Zero(t, st.Outstanding)

	assert.ErrorIs(t, chunks[len(chunks)-1].Release(), errorx.ErrStaleChunk)
	assert.Nil(t, chunks[len(chunks)-1].Bytes())
}

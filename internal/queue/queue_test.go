package queue_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/panjf2000/gchannel/internal/queue"
)

func TestLockFreeQueueOrder(t *testing.T) {
	q := queue.NewLockFreeQueue()
	assert.True(t, q.IsEmpty())
	assert.Nil(t, q.Dequeue())

	for i := 0; i < 3; i++ {
		task := queue.GetTask()
		task.Arg = i
		q.Enqueue(task)
	}
	assert.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		task := q.Dequeue()
		require.NotNil(t, task)
		assert.Equal(t, i, task.Arg)
		queue.PutTask(task)
	}
	assert.True(t, q.IsEmpty())
}

func TestLockFreeQueueConcurrent(t *testing.T) {
	const (
		producers = 4
		taskNum   = 10000
	)
	q := queue.NewLockFreeQueue()
	var g errgroup.Group
	for i := 0; i < producers; i++ {
		g.Go(func() error {
			for j := 0; j < taskNum; j++ {
				q.Enqueue(&queue.Task{})
			}
			return nil
		})
	}

	var counter int32
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			for atomic.LoadInt32(&counter) < producers*taskNum {
				if q.Dequeue() != nil {
					atomic.AddInt32(&counter, 1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, producers*taskNum, counter)
	assert.True(t, q.IsEmpty())
}

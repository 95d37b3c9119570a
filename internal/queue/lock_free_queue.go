// Copyright (c) 2021 Andy Pan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"sync/atomic"
	"unsafe"
)

// lockFreeQueue is the non-blocking queue of Michael and Scott, "Simple, Fast, and Practical
// Non-Blocking and Blocking Concurrent Queue Algorithms". The head always points at a dummy node,
// the first task lives in head.next.
type lockFreeQueue struct {
	head   unsafe.Pointer
	tail   unsafe.Pointer
	length int32
}

type node struct {
	task *Task
	next unsafe.Pointer
}

// NewLockFreeQueue returns an empty multi-producer multi-consumer task queue.
func NewLockFreeQueue() AsyncTaskQueue {
	dummy := unsafe.Pointer(new(node))
	return &lockFreeQueue{head: dummy, tail: dummy}
}

// Enqueue appends task at the tail.
func (q *lockFreeQueue) Enqueue(task *Task) {
	n := &node{task: task}
	for {
		tail := load(&q.tail)
		next := load(&tail.next)
		if tail != load(&q.tail) {
			continue
		}
		if next != nil {
			// tail is lagging behind, help the other producer along.
			cas(&q.tail, tail, next)
			continue
		}
		if cas(&tail.next, nil, n) {
			cas(&q.tail, tail, n)
			atomic.AddInt32(&q.length, 1)
			return
		}
	}
}

// Dequeue removes and returns the task at the head, nil if the queue is empty.
func (q *lockFreeQueue) Dequeue() *Task {
	for {
		head := load(&q.head)
		tail := load(&q.tail)
		next := load(&head.next)
		if head != load(&q.head) {
			continue
		}
		if next == nil {
			return nil
		}
		if head == tail {
			cas(&q.tail, tail, next)
			continue
		}
		// Read the task before swinging head, next becomes the new dummy afterwards.
		task := next.task
		if cas(&q.head, head, next) {
			next.task = nil
			atomic.AddInt32(&q.length, -1)
			return task
		}
	}
}

// IsEmpty tells whether the queue holds no task.
func (q *lockFreeQueue) IsEmpty() bool {
	return atomic.LoadInt32(&q.length) == 0
}

// Len returns the number of queued tasks.
func (q *lockFreeQueue) Len() int {
	return int(atomic.LoadInt32(&q.length))
}

func load(p *unsafe.Pointer) *node {
	return (*node)(atomic.LoadPointer(p))
}

func cas(p *unsafe.Pointer, old, new *node) bool {
	return atomic.CompareAndSwapPointer(p, unsafe.Pointer(old), unsafe.Pointer(new))
}

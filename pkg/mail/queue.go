/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"sync"
	"time"
)

// Queue is an unbounded, thread-safe FIFO of mail tasks. A nil entry is a
// poison pill: popping it instructs the worker to terminate. Push never
// blocks the caller; Pop blocks up to a timeout.
//
// There is no priority and no deduplication: a task pushed twice is
// processed twice. Retried tasks re-enter at the back, interleaved with
// newly enqueued tasks.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []*Task
	tasks    int // live task count, excluding sentinels
	inflight int // tasks handed to a worker via Pop but not yet Done
}

// NewQueue creates an empty task queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends a task to the back of the queue. It never blocks and never
// fails; the queue grows without bound.
func (q *Queue) Push(t *Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	if t != nil {
		q.tasks++
	}
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// PushSentinel appends one poison pill. Shutdown pushes exactly one per
// worker so each worker observes exactly one stop signal.
func (q *Queue) PushSentinel() {
	q.Push(nil)
}

// Pop removes and returns the oldest item. It blocks up to timeout when the
// queue is empty; ok is false on timeout. A (nil, true) return is a
// sentinel and means the caller should stop.
func (q *Queue) Pop(timeout time.Duration) (t *Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		timedOut := false
		// sync.Cond has no timed wait; a one-shot timer wakes all waiters
		// so this one can observe its own deadline.
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			timedOut = true
			q.mu.Unlock()
			q.notEmpty.Broadcast()
		})
		defer timer.Stop()

		for len(q.items) == 0 && !timedOut {
			q.notEmpty.Wait()
		}
		if len(q.items) == 0 {
			return nil, false
		}
	}

	t = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if t != nil {
		q.tasks--
		// counted as in flight under the same lock, so no observer can
		// see the task gone from the queue before it shows up here
		q.inflight++
	}
	return t, true
}

// Done marks one popped task as fully processed. Every worker must call it
// exactly once per task returned by Pop.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
}

// Len returns the number of pending tasks, not counting sentinels.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks
}

// Idle reports whether no task is queued and none is being processed.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks == 0 && q.inflight == 0
}

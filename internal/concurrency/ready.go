// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// ReadyQueue is a multi-producer FIFO drained by a single consumer. Workers
// push finished items; the poll goroutine drains them once per tick.
type ReadyQueue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewReadyQueue returns an empty queue.
func NewReadyQueue[T any]() *ReadyQueue[T] {
	return &ReadyQueue[T]{q: queue.New()}
}

// Push appends v.
func (r *ReadyQueue[T]) Push(v T) {
	r.mu.Lock()
	r.q.Add(v)
	r.mu.Unlock()
}

// Len returns the number of queued items.
func (r *ReadyQueue[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

// Drain removes every queued item in FIFO order and passes it to fn outside
// the lock, so fn may push again without deadlocking.
func (r *ReadyQueue[T]) Drain(fn func(T)) int {
	r.mu.Lock()
	n := r.q.Length()
	items := make([]T, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, r.q.Remove().(T))
	}
	r.mu.Unlock()
	for _, v := range items {
		fn(v)
	}
	return n
}

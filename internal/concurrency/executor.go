// File: internal/concurrency/executor.go
// Package concurrency implements the processing worker pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines from one unbounded FIFO,
// so Submit never blocks the poll goroutine.

package concurrency

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-frame/api"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog *queue.Queue // of TaskFunc
	closed  bool
	wg      sync.WaitGroup
	log     *slog.Logger

	numWorkers int

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor creates an Executor with numWorkers goroutines.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int, log *slog.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Executor{
		backlog:    queue.New(),
		log:        log,
		numWorkers: numWorkers,
	}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e
}

// Submit enqueues a task, returning api.ErrExecutorClosed after Close.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrExecutorClosed
	}
	e.backlog.Add(task)
	e.totalTasks.Add(1)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return e.numWorkers
}

// Pending returns the number of queued, not yet started tasks.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backlog.Length()
}

// Close stops accepting tasks, lets workers drain the backlog and waits for them.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	completed := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"panicked_tasks":  e.panics.Load(),
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.backlog.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.backlog.Length() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.backlog.Remove().(TaskFunc)
		e.mu.Unlock()
		e.executeTask(id, task)
	}
}

// executeTask runs the task and updates statistics, recovering from panics.
func (e *Executor) executeTask(id int, task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("task panicked", "worker", id, "panic", fmt.Sprint(r))
		}
		e.completedTasks.Add(1)
	}()
	task()
}

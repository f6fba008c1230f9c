/*
DESCRIPTION
  worker.go provides the persistence worker, which runs saves and output
  finalization off the engine's command loop.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package snap

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrWorkerBusy is returned by Do when the job queue is full.
var ErrWorkerBusy = errors.New("persistence worker busy")

type job struct {
	fn   func() error
	done func(error)
}

// worker runs jobs in order on a single goroutine. Completions are handed to
// post, which must run them on the goroutine that called Do.
type worker struct {
	jobs    chan job
	post    func(func())
	pending atomic.Int64 // Jobs queued or running, plus completions not yet run.
	wg      sync.WaitGroup
}

func newWorker(n int, post func(func())) *worker {
	w := &worker{jobs: make(chan job, n), post: post}
	w.wg.Add(1)
	go w.run()
	return w
}

// Do queues fn. It does not block.
func (w *worker) Do(fn func() error, done func(error)) error {
	w.pending.Add(1)
	select {
	case w.jobs <- job{fn: fn, done: done}:
		return nil
	default:
		w.pending.Add(-1)
		return ErrWorkerBusy
	}
}

func (w *worker) run() {
	defer w.wg.Done()
	for j := range w.jobs {
		err := j.fn()
		w.post(func() {
			j.done(err)
			w.pending.Add(-1)
		})
	}
}

// busy reports whether any job or completion is outstanding.
func (w *worker) busy() bool { return w.pending.Load() > 0 }

// close stops the worker once queued jobs have run. Do must not be called
// after close.
func (w *worker) close() {
	close(w.jobs)
	w.wg.Wait()
}

// Package utils holds small pieces of shared infrastructure (the worker
// pool, used by internal/net's connection handling).
package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultTaskChanSize = 100

// WorkerFunction is the unit of work a WorkerPool repeatedly pulls off its
// task channel and executes.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool maintains a fixed number of goroutines pulling tasks off a
// shared buffered channel. It is generic over `any`; its one caller, the
// wire adapter, feeds it raw net.Conn values.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
}

// NewWorkerPool creates a pool sized to run `size` concurrent workers.
func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, defaultTaskChanSize),
		n:     size,
	}
}

// AddTask enqueues a task for a free worker to pick up. Blocks if the
// internal buffer is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup starts and maintains `pool.n` workers against `work` until `t`
// enters its dying state.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.worker(t)
		})
	}
}

// worker repeatedly pulls tasks off the shared channel and executes them,
// exiting cleanly when the tomb starts dying.
func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				log.Error().Err(err).Msg("worker exiting")
				return err
			}
		}
	}
}

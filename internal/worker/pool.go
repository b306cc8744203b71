// Package worker fans independent origin-entity jobs out to a bounded set of
// goroutines. Entities never share canonical-event state, so the pool imposes
// no ordering across jobs; ordering across dates for one entity is the job's
// own responsibility.
package worker

import (
	"context"
	"sync"
)

// Job is one entity's complete workload.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome reports how one job finished.
type Outcome struct {
	Name string
	Err  error
}

// Pool executes jobs on a fixed number of goroutines. Finished outcomes are
// collected under a mutex, never through a bounded channel, so workers make
// progress no matter how many jobs are queued ahead of Wait.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup

	mu       sync.Mutex
	outcomes []Outcome
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
	}
}

// Start launches the workers. The context cancels in-flight and queued jobs.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			outcome := Outcome{Name: job.Name, Err: job.Run(ctx)}
			p.mu.Lock()
			p.outcomes = append(p.outcomes, outcome)
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. Blocks only while every worker is busy and the queue
// is full; workers always drain the queue.
func (p *Pool) Submit(ctx context.Context, job Job) {
	select {
	case <-ctx.Done():
	case p.jobs <- job:
	}
}

// Wait closes the queue, waits for the workers to drain it, and returns every
// outcome.
func (p *Pool) Wait() []Outcome {
	close(p.jobs)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcomes
}

package worker

import (
	"log/slog"
	"sync"

	"github.com/gigledger/escrow/internal/metrics"
)

type task func()

// Pool runs submitted tasks on a fixed number of goroutines. A panicking task
// is logged and does not take its worker down.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan task
	log    *slog.Logger
	mu     sync.RWMutex
	closed bool
}

func NewPool(n int, log *slog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan task, 1024), log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker task panic", "err", rec)
		}
	}()
	job()
}

// Submit enqueues f, blocking while the queue is full. It reports false once
// the pool is stopped.
func (p *Pool) Submit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	metrics.WorkerQueueDepth.Inc()
	p.jobs <- f
	return true
}

// Stop drains the queue and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

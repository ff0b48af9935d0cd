// Package workerpool is a bounded goroutine pool with backpressure and keyed
// coalescing. Realtime change notifications use it to refetch the catalog
// and the admin board without piling up duplicate reloads.
//
//	pool := workerpool.New(4)
//	defer pool.Shutdown()
//	pool.SubmitKey("catalog", reload) // no-op while a catalog reload is queued
package workerpool

import (
	"errors"
	"sync"

	"github.com/uvci/resto/pkg/logger"
)

// ErrPoolFull is returned by Submit when the task queue is at capacity.
var ErrPoolFull = errors.New("workerpool: pool is full")

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("workerpool: pool is closed")

// Pool is a bounded goroutine pool.
type Pool struct {
	mu      sync.RWMutex
	closed  bool
	tasks   chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closeCh chan struct{}

	pendingMu sync.Mutex
	pending   map[string]bool
}

// New starts size workers. The queue holds twice that many tasks.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks:   make(chan func(), size*2),
		closeCh: make(chan struct{}),
		pending: make(map[string]bool),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait blocks until a slot is free or the pool closes.
func (p *Pool) SubmitWait(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case <-p.closeCh:
		return ErrPoolClosed
	case p.tasks <- task:
		return nil
	}
}

// SubmitKey enqueues task unless a task with the same key is already waiting
// to run. It reports whether task was queued. Once a keyed task starts, a new
// one with that key may be queued again, so a change that lands during a
// reload still triggers one more reload.
func (p *Pool) SubmitKey(key string, task func()) (bool, error) {
	p.pendingMu.Lock()
	if p.pending[key] {
		p.pendingMu.Unlock()
		return false, nil
	}
	p.pending[key] = true
	p.pendingMu.Unlock()

	err := p.Submit(func() {
		p.release(key)
		task()
	})
	if err != nil {
		p.release(key)
		return false, err
	}
	return true, nil
}

func (p *Pool) release(key string) {
	p.pendingMu.Lock()
	delete(p.pending, key)
	p.pendingMu.Unlock()
}

// Shutdown stops accepting tasks, waits for queued and running tasks, and
// releases the workers. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.closeCh)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		safeRun(task)
	}
}

func safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("workerpool: task panicked", "panic", r)
		}
	}()
	task()
}

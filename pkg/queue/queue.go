// Package queue runs background jobs with retry and failed-job tracking.
//
//	q := queue.New(queue.NewMemoryDriver(), queue.Options{})
//	q.Register("order.placed", func() queue.Job { return &jobs.OrderPlaced{} })
//	q.Start(ctx, 2)
//	q.Dispatch(ctx, &jobs.OrderPlaced{OrderID: id})
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
)

// Job is a unit of background work. Jobs are JSON encoded on the queue.
type Job interface {
	Handle(ctx context.Context) error
}

// Named jobs choose the type name they are registered under. Other jobs use
// their Go type name.
type Named interface {
	JobName() string
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	// Pop blocks until a payload is available. A nil payload with a nil
	// error means nothing arrived before the driver's poll timeout.
	Pop(ctx context.Context) ([]byte, error)
}

// Delayer is implemented by drivers that can hold a job until a later time.
type Delayer interface {
	PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error
}

// FailedJob is a job that exhausted its retries.
type FailedJob struct {
	JobType  string
	Payload  string
	Err      string
	Attempts int
	FailedAt time.Time
}

// ErrUnregistered is returned by Dispatch for a job type with no factory.
var ErrUnregistered = errors.New("queue: job type not registered")

type Options struct {
	MaxRetry int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
	// DB persists failed jobs. Nil keeps them in memory only.
	DB *gorm.DB
}

// Manager dispatches jobs to a driver and runs workers that process them.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	registry map[string]func() Job
	failed   []FailedJob
	maxRetry int
	backoff  time.Duration
	db       *gorm.DB
	wg       sync.WaitGroup
}

func New(driver Driver, opts Options) *Manager {
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Manager{
		driver:   driver,
		registry: map[string]func() Job{},
		maxRetry: opts.MaxRetry,
		backoff:  opts.Backoff,
		db:       opts.DB,
	}
}

// Register makes a job type available for decoding by name.
func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = factory
}

func jobName(job Job) string {
	if n, ok := job.(Named); ok {
		return n.JobName()
	}
	return fmt.Sprintf("%T", job)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (m *Manager) encode(job Job) ([]byte, string, error) {
	name := jobName(job)
	m.mu.RLock()
	_, ok := m.registry[name]
	m.mu.RUnlock()
	if !ok {
		return nil, name, fmt.Errorf("%w: %s", ErrUnregistered, name)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, name, fmt.Errorf("queue: marshal job %s: %w", name, err)
	}
	env, err := json.Marshal(envelope{Type: name, Payload: payload})
	if err != nil {
		return nil, name, fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return env, name, nil
}

// Dispatch pushes job onto the queue immediately.
func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	env, name, err := m.encode(job)
	if err != nil {
		return err
	}
	if err := m.driver.Push(ctx, env); err != nil {
		return fmt.Errorf("queue: dispatch %s: %w", name, err)
	}
	return nil
}

// DispatchAfter pushes job once delay has passed. Drivers that implement
// Delayer hold the job themselves; otherwise a timer is used.
func (m *Manager) DispatchAfter(ctx context.Context, job Job, delay time.Duration) error {
	env, name, err := m.encode(job)
	if err != nil {
		return err
	}
	if d, ok := m.driver.(Delayer); ok {
		return d.PushDelayed(ctx, env, delay)
	}
	time.AfterFunc(delay, func() {
		if err := m.driver.Push(context.Background(), env); err != nil {
			logger.Error("queue: delayed dispatch failed", "type", name, "error", err)
		}
	})
	return nil
}

// Start launches n workers that run until ctx is cancelled.
func (m *Manager) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.work(ctx)
		}()
	}
	logger.Info("queue: workers started", "count", n)
}

// Wait blocks until every worker started by Start has returned.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) work(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := m.driver.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue: pop failed", "error", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if raw == nil {
			continue
		}
		m.process(ctx, raw)
	}
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()
	if !ok {
		logger.Warn("queue: unregistered job type", "type", env.Type)
		return
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		logger.Error("queue: unmarshal payload", "type", env.Type, "error", err)
		return
	}
	m.runWithRetry(ctx, job, env)
}

func (m *Manager) runWithRetry(ctx context.Context, job Job, env envelope) {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= m.maxRetry; attempt++ {
		if lastErr = job.Handle(ctx); lastErr == nil {
			metrics.RecordQueueJob(env.Type, "success", start)
			logger.Debug("queue: job processed", "type", env.Type, "attempt", attempt)
			return
		}
		logger.Warn("queue: job failed, retrying", "type", env.Type, "attempt", attempt, "error", lastErr)
		if attempt < m.maxRetry && !sleep(ctx, time.Duration(attempt)*m.backoff) {
			break
		}
	}

	metrics.RecordQueueJob(env.Type, "failed", start)
	logger.Error("queue: job exhausted retries", "type", env.Type, "error", lastErr)
	m.persistFailed(ctx, FailedJob{
		JobType:  env.Type,
		Payload:  string(env.Payload),
		Err:      lastErr.Error(),
		Attempts: m.maxRetry,
		FailedAt: time.Now(),
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

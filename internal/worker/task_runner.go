// Package worker runs background work outside the request path.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huffhealth/crm/internal/pkg/logger"
)

// TaskRunner executes fire-and-forget work outside the request that
// scheduled it. Tasks run on the runner's own root context, so a client
// disconnect never cancels them; Shutdown does.
type TaskRunner struct {
	sem         chan struct{}
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	started   int64
	succeeded int64
	failed    int64
}

// TaskRunnerConfig holds configuration for the task runner.
type TaskRunnerConfig struct {
	MaxConcurrent int           // Tasks allowed to run at once
	MaxAttempts   int           // Attempts per task, including the first
	BaseBackoff   time.Duration // Delay before the second attempt, doubled after each failure
	MaxBackoff    time.Duration
}

// DefaultTaskRunnerConfig returns default configuration.
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		MaxConcurrent: 8,
		MaxAttempts:   3,
		BaseBackoff:   500 * time.Millisecond,
		MaxBackoff:    10 * time.Second,
	}
}

// NewTaskRunner creates a task runner. Zero config values take defaults.
func NewTaskRunner(cfg TaskRunnerConfig) *TaskRunner {
	def := DefaultTaskRunnerConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Go schedules fn and returns immediately. fn is retried with exponential
// backoff while it returns an error; the final outcome is only logged.
// Tasks submitted after Shutdown has begun are dropped.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logger.Warn("task dropped, runner is shutting down", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	atomic.AddInt64(&r.started, 1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			atomic.AddInt64(&r.failed, 1)
			logger.Warn("task cancelled before start", "task", name)
			return
		}
		defer func() { <-r.sem }()

		if err := r.run(name, fn); err != nil {
			atomic.AddInt64(&r.failed, 1)
			logger.Error("task failed", "task", name, "attempts", r.maxAttempts, "error", err)
			return
		}
		atomic.AddInt64(&r.succeeded, 1)
	}()
}

func (r *TaskRunner) run(name string, fn func(ctx context.Context) error) error {
	backoff := r.baseBackoff
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.attempt(fn)
		if err == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		logger.Warn("task attempt failed, retrying",
			"task", name, "attempt", attempt, "backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
		case <-r.ctx.Done():
			return fmt.Errorf("%w (last error: %v)", r.ctx.Err(), err)
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
	return err
}

// attempt converts a panic in fn into an error.
func (r *TaskRunner) attempt(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(r.ctx)
}

// Shutdown cancels the root context and waits for in-flight tasks until ctx
// expires.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("task runner stopped", "stats", r.Stats())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task runner shutdown: %w", ctx.Err())
	}
}

// Stats returns task counters.
func (r *TaskRunner) Stats() map[string]int64 {
	return map[string]int64{
		"started":   atomic.LoadInt64(&r.started),
		"succeeded": atomic.LoadInt64(&r.succeeded),
		"failed":    atomic.LoadInt64(&r.failed),
	}
}

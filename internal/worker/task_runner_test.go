package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRunner(maxConcurrent, maxAttempts int) *TaskRunner {
	return NewTaskRunner(TaskRunnerConfig{
		MaxConcurrent: maxConcurrent,
		MaxAttempts:   maxAttempts,
		BaseBackoff:   time.Millisecond,
		MaxBackoff:    5 * time.Millisecond,
	})
}

func shutdown(t *testing.T, r *TaskRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func TestTaskRunner_RunsDetachedFromCaller(t *testing.T) {
	r := fastRunner(2, 1)
	done := make(chan error, 1)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	r.Go("detached", func(ctx context.Context) error {
		cancelReq()
		<-reqCtx.Done()
		done <- ctx.Err()
		return nil
	})

	select {
	case err := <-done:
		assert.NoError(t, err, "task context must outlive the request")
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	shutdown(t, r)
	assert.Equal(t, int64(1), r.Stats()["succeeded"])
}

func TestTaskRunner_RetriesUntilSuccess(t *testing.T) {
	r := fastRunner(1, 3)
	var calls int32

	r.Go("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	shutdownAfter(t, r, func() bool { return r.Stats()["succeeded"] == 1 })

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Zero(t, r.Stats()["failed"])
}

func TestTaskRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	r := fastRunner(1, 2)
	var calls int32

	r.Go("broken", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	})
	shutdownAfter(t, r, func() bool { return r.Stats()["failed"] == 1 })

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTaskRunner_RecoversPanics(t *testing.T) {
	r := fastRunner(1, 1)
	r.Go("panics", func(ctx context.Context) error {
		panic("boom")
	})
	shutdownAfter(t, r, func() bool { return r.Stats()["failed"] == 1 })
}

func TestTaskRunner_BoundsConcurrency(t *testing.T) {
	r := fastRunner(2, 1)
	var active, peak int32
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		r.Go("bounded", func(ctx context.Context) error {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
			return nil
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	shutdownAfter(t, r, func() bool { return r.Stats()["succeeded"] == 6 })
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestTaskRunner_DropsAfterShutdown(t *testing.T) {
	r := fastRunner(1, 1)
	shutdown(t, r)

	ran := false
	r.Go("late", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.False(t, ran)
	assert.Zero(t, r.Stats()["started"])
}

// shutdownAfter waits for cond before shutting the runner down.
func shutdownAfter(t *testing.T, r *TaskRunner, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	shutdown(t, r)
}

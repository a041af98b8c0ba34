package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huffhealth/crm/internal/domain"
)

// DefaultSyncInterval is how often connected pages are polled.
const DefaultSyncInterval = 15 * time.Minute

// LeadSyncer pulls new leads for every active integration.
// *leadsync.Service satisfies it.
type LeadSyncer interface {
	SyncAll(ctx context.Context) (*domain.SyncResult, error)
}

// LeadSyncWorker runs the pull sync on a timer as a safety net for missed
// webhook deliveries. Overlap between replicas is prevented by the
// per-integration lock inside the syncer.
type LeadSyncWorker struct {
	syncer   LeadSyncer
	interval time.Duration

	totalRuns   int64
	totalSynced int64
	totalErrors int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewLeadSyncWorker creates a worker. A non-positive interval uses
// DefaultSyncInterval.
func NewLeadSyncWorker(syncer LeadSyncer, interval time.Duration) *LeadSyncWorker {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &LeadSyncWorker{syncer: syncer, interval: interval}
}

// Start launches the sync loop in the background. The first sync runs
// immediately.
func (w *LeadSyncWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[LeadSync] Starting with interval=%s", w.interval)

	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the loop and waits for an in-progress sync to return.
func (w *LeadSyncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	log.Println("[LeadSync] Stopping...")
	w.wg.Wait()
	log.Printf("[LeadSync] Stopped. Stats: runs=%d, synced=%d, errors=%d",
		atomic.LoadInt64(&w.totalRuns),
		atomic.LoadInt64(&w.totalSynced),
		atomic.LoadInt64(&w.totalErrors))
}

func (w *LeadSyncWorker) loop() {
	defer w.wg.Done()

	w.RunOnce(w.ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(w.ctx)
		}
	}
}

// RunOnce performs one sync pass over all active integrations.
func (w *LeadSyncWorker) RunOnce(ctx context.Context) *domain.SyncResult {
	start := time.Now()
	atomic.AddInt64(&w.totalRuns, 1)

	res, err := w.syncer.SyncAll(ctx)
	if err != nil {
		atomic.AddInt64(&w.totalErrors, 1)
		log.Printf("[LeadSync] Sync pass failed: %v", err)
		return res
	}
	atomic.AddInt64(&w.totalSynced, int64(res.Synced))
	atomic.AddInt64(&w.totalErrors, int64(res.Errors))

	if res.Synced > 0 || res.Errors > 0 {
		log.Printf("[LeadSync] Pass completed in %s: synced=%d, duplicates=%d, errors=%d",
			time.Since(start).Round(time.Millisecond), res.Synced, res.Duplicates, res.Errors)
	}
	return res
}

// Stats returns sync counters.
func (w *LeadSyncWorker) Stats() map[string]int64 {
	return map[string]int64{
		"total_runs":   atomic.LoadInt64(&w.totalRuns),
		"total_synced": atomic.LoadInt64(&w.totalSynced),
		"total_errors": atomic.LoadInt64(&w.totalErrors),
	}
}

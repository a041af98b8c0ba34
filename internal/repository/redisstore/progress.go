// Package redisstore keeps short-lived import state in Redis.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "crm:import:progress:"

	// ProgressTTL is how long a tally survives after its last batch.
	ProgressTTL = 24 * time.Hour
)

const (
	fieldBatches   = "batches_received"
	fieldTotal     = "total_batches"
	fieldRows      = "rows_processed"
	fieldSuccess   = "success_count"
	fieldFailed    = "failed_count"
	fieldFinalized = "finalized"
	fieldUpdated   = "updated_at"
)

// ProgressStore records per-list batch tallies in a Redis hash.
type ProgressStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewProgressStore creates a progress store with ProgressTTL.
func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{redis: client, ttl: ProgressTTL, now: time.Now}
}

func (s *ProgressStore) key(listID string) string {
	return progressKeyPrefix + listID
}

// RecordBatch adds one batch's counts to the list's tally. Increments run in
// a single MULTI so concurrent batches never lose an update.
func (s *ProgressStore) RecordBatch(ctx context.Context, listID string, totalBatches int, result *domain.ImportResult) error {
	key := s.key(listID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldBatches, 1)
		pipe.HIncrBy(ctx, key, fieldRows, int64(result.TotalProcessed))
		pipe.HIncrBy(ctx, key, fieldSuccess, int64(result.SuccessCount))
		pipe.HIncrBy(ctx, key, fieldFailed, int64(result.FailedCount))
		pipe.HSet(ctx, key,
			fieldTotal, totalBatches,
			fieldUpdated, s.now().UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record import progress for %s: %w", listID, err)
	}
	return nil
}

// MarkFinalized flags the tally as complete.
func (s *ProgressStore) MarkFinalized(ctx context.Context, listID string) error {
	key := s.key(listID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldFinalized, "1",
			fieldUpdated, s.now().UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark import finalized for %s: %w", listID, err)
	}
	return nil
}

// Get returns leadimport.ErrNoProgress when nothing was recorded or the
// tally has expired.
func (s *ProgressStore) Get(ctx context.Context, listID string) (*domain.ImportProgress, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(listID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read import progress for %s: %w", listID, err)
	}
	if len(vals) == 0 {
		return nil, leadimport.ErrNoProgress
	}

	p := &domain.ImportProgress{
		ListID:          listID,
		BatchesReceived: atoi(vals[fieldBatches]),
		TotalBatches:    atoi(vals[fieldTotal]),
		RowsProcessed:   atoi(vals[fieldRows]),
		SuccessCount:    atoi(vals[fieldSuccess]),
		FailedCount:     atoi(vals[fieldFailed]),
		Finalized:       vals[fieldFinalized] == "1",
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals[fieldUpdated]); err == nil {
		p.UpdatedAt = ts
	}
	return p, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

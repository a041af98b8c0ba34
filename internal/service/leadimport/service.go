package leadimport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/pkg/distlock"
	"github.com/huffhealth/crm/internal/pkg/logger"
)

const (
	// DefaultChunkSize bounds the number of leads written per statement.
	DefaultChunkSize = 100

	// DefaultSource labels leads whose rows carry no mapped source.
	DefaultSource = "CSV Import"

	finalizeLockTTL = 2 * time.Minute
)

// ImportRequest is one physical batch of a logical upload. An empty ListID
// means this is the first batch; BatchNumber == TotalBatches marks the last.
type ImportRequest struct {
	Rows          []datanorm.Row
	Mappings      datanorm.FieldMapping
	ListName      string
	FileName      string
	Source        string
	ListID        string
	BatchNumber   int
	TotalBatches  int
	TotalRows     int
	InitialStatus string
	OwnerID       string
}

// IsLastBatch reports whether this request should finalize the list.
func (r *ImportRequest) IsLastBatch() bool {
	return r.BatchNumber == r.TotalBatches
}

// Service implements lead import business logic. It is safe for concurrent
// use, but batches of one list must be submitted sequentially.
type Service struct {
	repo       Repository
	normalizer *datanorm.Normalizer
	progress   ProgressRecorder
	locks      distlock.Factory
	chunkSize  int

	defaultSource string
}

// Option configures optional collaborators.
type Option func(*Service)

// WithProgress records batch tallies for polling clients.
func WithProgress(p ProgressRecorder) Option {
	return func(s *Service) { s.progress = p }
}

// WithLocker guards finalization with a distributed lock.
func WithLocker(f distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithDefaultSource overrides DefaultSource.
func WithDefaultSource(label string) Option {
	return func(s *Service) {
		if label = strings.TrimSpace(label); label != "" {
			s.defaultSource = label
		}
	}
}

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// NewService creates an import service backed by the given repository.
func NewService(repo Repository, normalizer *datanorm.Normalizer, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		normalizer: normalizer,
		chunkSize:  DefaultChunkSize,

		defaultSource: DefaultSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import processes one batch. A malformed request fails with a
// *BadRequestError before anything is written; an unknown ListID fails
// with ErrListNotFound. Every other problem is reported per row in the
// result.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*domain.ImportResult, error) {
	status, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	list, err := s.resolveList(ctx, &req)
	if err != nil {
		return nil, err
	}

	leads, rejected := s.normalizer.NormalizeAll(req.Rows, req.Mappings, req.Source)
	for _, lead := range leads {
		lead.ListID = list.ID
		lead.OwnerID = req.OwnerID
		lead.Status = status
	}

	inserted, writeErrs := s.Ingest(ctx, leads)

	rowErrs := append(rejected, writeErrs...)
	sort.SliceStable(rowErrs, func(i, j int) bool { return rowErrs[i].Row < rowErrs[j].Row })
	if rowErrs == nil {
		rowErrs = []domain.RowError{}
	}

	result := &domain.ImportResult{
		TotalProcessed: len(req.Rows),
		SuccessCount:   inserted,
		FailedCount:    len(rowErrs),
		Errors:         rowErrs,
		ListID:         list.ID,
	}

	logger.Info("lead import batch processed",
		"list_id", list.ID,
		"batch", fmt.Sprintf("%d/%d", req.BatchNumber, req.TotalBatches),
		"rows", result.TotalProcessed,
		"inserted", result.SuccessCount,
		"failed", result.FailedCount,
	)

	if s.progress != nil {
		if err := s.progress.RecordBatch(ctx, list.ID, req.TotalBatches, result); err != nil {
			logger.Warn("record import progress failed", "list_id", list.ID, "error", err)
		}
	}

	if req.IsLastBatch() {
		// A finalize failure never undoes inserted leads; the batch result
		// still reflects what was written.
		if _, err := s.Finalize(ctx, list.ID); err != nil {
			logger.Error("finalize lead list failed", "list_id", list.ID, "error", err)
		}
	}

	return result, nil
}

func (s *Service) validate(req *ImportRequest) (domain.LeadStatus, error) {
	if req.Rows == nil {
		return "", badRequest("rows", "is required")
	}
	if req.Mappings == nil {
		return "", badRequest("mappings", "is required")
	}
	req.ListName = strings.TrimSpace(req.ListName)
	if req.ListName == "" {
		return "", badRequest("listName", "is required")
	}
	if err := req.Mappings.Validate(); err != nil {
		return "", badRequest("mappings", err.Error())
	}
	status, err := domain.ParseLeadStatus(req.InitialStatus)
	if err != nil {
		return "", badRequest("initialStatus", err.Error())
	}

	if req.TotalBatches <= 0 && req.BatchNumber <= 0 {
		req.TotalBatches, req.BatchNumber = 1, 1
	}
	if req.TotalBatches <= 0 || req.BatchNumber <= 0 {
		return "", badRequest("batchNumber", "batchNumber and totalBatches must both be positive")
	}
	if req.BatchNumber > req.TotalBatches {
		return "", badRequest("batchNumber", fmt.Sprintf("batch %d exceeds totalBatches %d", req.BatchNumber, req.TotalBatches))
	}
	if req.TotalRows < 0 {
		return "", badRequest("totalRows", "must not be negative")
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		req.Source = s.defaultSource
	}
	return status, nil
}

// resolveList loads the list named by the request or creates it on the
// first batch. A new list records the size of the whole upload, not just
// this batch.
func (s *Service) resolveList(ctx context.Context, req *ImportRequest) (*domain.LeadList, error) {
	if req.ListID != "" {
		list, err := s.repo.GetList(ctx, req.ListID)
		if err != nil {
			return nil, err
		}
		return list, nil
	}

	total := req.TotalRows
	if total == 0 {
		total = len(req.Rows)
	}
	list := &domain.LeadList{
		ID:           uuid.New().String(),
		OwnerID:      req.OwnerID,
		Name:         req.ListName,
		FileName:     req.FileName,
		Source:       req.Source,
		TotalRecords: total,
		FieldMapping: req.Mappings.JSON(),
	}
	if err := s.repo.CreateList(ctx, list); err != nil {
		return nil, fmt.Errorf("create lead list: %w", err)
	}
	logger.Info("lead list created", "list_id", list.ID, "name", list.Name, "total_records", total)
	return list, nil
}

// Ingest writes leads in chunks and returns how many were inserted plus an
// error entry for every lead that could not be written. A chunk whose bulk
// insert fails is retried one lead at a time.
func (s *Service) Ingest(ctx context.Context, leads []*domain.Lead) (int, []domain.RowError) {
	inserted := 0
	var rowErrs []domain.RowError

	for start := 0; start < len(leads); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(leads) {
			end = len(leads)
		}
		chunk := leads[start:end]
		for _, lead := range chunk {
			if lead.ID == "" {
				lead.ID = uuid.New().String()
			}
		}

		n, err := s.repo.InsertLeads(ctx, chunk)
		if err == nil {
			inserted += n
			continue
		}

		logger.Warn("bulk insert failed, retrying chunk row by row",
			"chunk_start", start, "chunk_size", len(chunk), "error", err)

		for _, lead := range chunk {
			if err := s.repo.InsertLead(ctx, lead); err != nil {
				rowErrs = append(rowErrs, domain.RowError{
					Row:   lead.RowNumber,
					Error: fmt.Sprintf("Failed to import %s: %s", lead.FullName(), insertFailureReason(err)),
				})
				continue
			}
			inserted++
		}
	}
	return inserted, rowErrs
}

func insertFailureReason(err error) string {
	if errors.Is(err, ErrDuplicateLead) {
		return ErrDuplicateLead.Error()
	}
	return err.Error()
}

// Finalize recounts the leads attached to a list and stores the result.
// It recomputes from stored rows, so running it again is harmless. When a
// lock factory is configured and another process holds the lock, Finalize
// returns the list unchanged.
func (s *Service) Finalize(ctx context.Context, listID string) (*domain.LeadList, error) {
	if s.locks != nil {
		lock := s.locks("leadlist:finalize:"+listID, finalizeLockTTL)
		acquired, err := lock.Acquire(ctx)
		switch {
		case err != nil:
			logger.Warn("finalize lock unavailable, continuing without it", "list_id", listID, "error", err)
		case !acquired:
			logger.Info("finalize already running elsewhere", "list_id", listID)
			return s.repo.GetList(ctx, listID)
		default:
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					logger.Warn("release finalize lock failed", "list_id", listID, "error", err)
				}
			}()
		}
	}

	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}

	imported, err := s.repo.CountLeadsInList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("count leads in list: %w", err)
	}
	failed := list.TotalRecords - imported
	if failed < 0 {
		failed = 0
	}

	if err := s.repo.FinalizeList(ctx, listID, imported, failed); err != nil {
		return nil, fmt.Errorf("finalize list: %w", err)
	}
	now := time.Now().UTC()
	list.ImportedCount, list.FailedCount, list.FinalizedAt = imported, failed, &now

	activity := &domain.Activity{
		ID:          uuid.New().String(),
		Type:        domain.ActivityLeadImport,
		Description: fmt.Sprintf("Imported %d of %d leads into %q", imported, list.TotalRecords, list.Name),
		EntityType:  "lead_list",
		EntityID:    listID,
		OwnerID:     list.OwnerID,
		Metadata: map[string]any{
			"fileName":      list.FileName,
			"source":        list.Source,
			"totalRecords":  list.TotalRecords,
			"importedCount": imported,
			"failedCount":   failed,
		},
	}
	if err := s.repo.InsertActivity(ctx, activity); err != nil {
		logger.Warn("write import activity failed", "list_id", listID, "error", err)
	}

	if s.progress != nil {
		if err := s.progress.MarkFinalized(ctx, listID); err != nil {
			logger.Warn("mark import progress finalized failed", "list_id", listID, "error", err)
		}
	}

	logger.Info("lead list finalized", "list_id", listID, "imported", imported, "failed", failed)
	return list, nil
}

// GetList returns an import ledger.
func (s *Service) GetList(ctx context.Context, listID string) (*domain.LeadList, error) {
	return s.repo.GetList(ctx, listID)
}

// Progress returns the running tally of a multi-batch import.
func (s *Service) Progress(ctx context.Context, listID string) (*domain.ImportProgress, error) {
	if s.progress == nil {
		return nil, ErrNoProgress
	}
	return s.progress.Get(ctx, listID)
}

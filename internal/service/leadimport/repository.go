package leadimport

import (
	"context"

	"github.com/huffhealth/crm/internal/domain"
)

// Repository defines the data access contract for bulk imports.
type Repository interface {
	// CreateList inserts a new import ledger row.
	CreateList(ctx context.Context, list *domain.LeadList) error

	// GetList returns the ledger row. Returns ErrListNotFound if it doesn't exist.
	GetList(ctx context.Context, id string) (*domain.LeadList, error)

	// InsertLeads writes leads in one statement, skipping any that violate
	// a uniqueness constraint. Returns the number of rows actually inserted.
	InsertLeads(ctx context.Context, leads []*domain.Lead) (int, error)

	// InsertLead writes a single lead. A uniqueness violation is returned
	// as ErrDuplicateLead.
	InsertLead(ctx context.Context, lead *domain.Lead) error

	// CountLeadsInList returns the number of leads currently attached to a list.
	CountLeadsInList(ctx context.Context, listID string) (int, error)

	// FinalizeList stores the final counts and stamps finalized_at.
	FinalizeList(ctx context.Context, listID string, imported, failed int) error

	// InsertActivity appends an audit entry.
	InsertActivity(ctx context.Context, a *domain.Activity) error
}

// ProgressRecorder keeps the advisory running tally polled by the upload UI.
type ProgressRecorder interface {
	RecordBatch(ctx context.Context, listID string, totalBatches int, result *domain.ImportResult) error
	MarkFinalized(ctx context.Context, listID string) error
	Get(ctx context.Context, listID string) (*domain.ImportProgress, error)
}

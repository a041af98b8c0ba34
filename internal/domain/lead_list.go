package domain

import (
	"encoding/json"
	"time"
)

// LeadList is the ledger for one logical bulk import. A single upload may
// arrive over several HTTP batches; all of them reference the same list.
//
// ImportedCount and FailedCount are written once, when the last batch is
// received, from a live count of the leads attached to the list.
type LeadList struct {
	ID            string          `json:"id" db:"id"`
	OwnerID       string          `json:"ownerId,omitempty" db:"owner_id"`
	Name          string          `json:"name" db:"name"`
	FileName      string          `json:"fileName,omitempty" db:"file_name"`
	Source        string          `json:"source,omitempty" db:"source"`
	TotalRecords  int             `json:"totalRecords" db:"total_records"`
	FieldMapping  json.RawMessage `json:"fieldMapping,omitempty" db:"field_mapping"`
	ImportedCount int             `json:"importedCount" db:"imported_count"`
	FailedCount   int             `json:"failedCount" db:"failed_count"`
	FinalizedAt   *time.Time      `json:"finalizedAt,omitempty" db:"finalized_at"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsFinalized reports whether the last batch has been processed.
func (l *LeadList) IsFinalized() bool { return l.FinalizedAt != nil }

// RowError is a soft failure for one row of an import request. Row is
// 1-based within the request's row slice.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportResult is returned for every import batch.
type ImportResult struct {
	TotalProcessed int        `json:"totalProcessed"`
	SuccessCount   int        `json:"successCount"`
	FailedCount    int        `json:"failedCount"`
	Errors         []RowError `json:"errors"`
	ListID         string     `json:"listId"`
}

// ImportProgress is the running tally of a multi-batch import, kept outside
// the ledger for polling clients. It is advisory; the LeadList is
// authoritative.
type ImportProgress struct {
	ListID          string    `json:"listId"`
	BatchesReceived int       `json:"batchesReceived"`
	TotalBatches    int       `json:"totalBatches"`
	RowsProcessed   int       `json:"rowsProcessed"`
	SuccessCount    int       `json:"successCount"`
	FailedCount     int       `json:"failedCount"`
	Finalized       bool      `json:"finalized"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/pkg/httpretry"
)

// batchRequest mirrors the body of POST /api/leads/import.
type batchRequest struct {
	Rows          []datanorm.Row        `json:"rows"`
	Mappings      datanorm.FieldMapping `json:"mappings"`
	ListName      string                `json:"listName"`
	FileName      string                `json:"fileName,omitempty"`
	Source        string                `json:"source,omitempty"`
	ListID        string                `json:"listId,omitempty"`
	BatchNumber   int                   `json:"batchNumber"`
	TotalBatches  int                   `json:"totalBatches"`
	TotalRows     int                   `json:"totalRows"`
	InitialStatus string                `json:"initialStatus,omitempty"`
}

// Upload describes one file submission.
type Upload struct {
	Rows          []datanorm.Row
	Mapping       datanorm.FieldMapping
	ListName      string
	FileName      string
	Source        string
	InitialStatus string
	BatchSize     int
}

// Summary totals every batch of an upload. Error rows are file positions,
// counting the first data row as 1.
type Summary struct {
	ListID    string
	Batches   int
	Processed int
	Succeeded int
	Failed    int
	Errors    []domain.RowError
}

// Uploader submits an upload to the import API one batch at a time. The
// list id returned by the first batch is sent with every later one.
//
// The first batch goes out once through client: the server creates the
// list on it, so a resend after a lost response would create a second
// list. Later batches carry the list id and go through retry.
type Uploader struct {
	baseURL string
	ownerID string
	client  httpretry.HTTPDoer
	retry   httpretry.HTTPDoer

	// Progress, when set, is called after each batch.
	Progress func(batch, total int, res *domain.ImportResult)
}

// NewUploader creates an uploader for the API at baseURL. retry may be
// nil, in which case every batch is sent once.
func NewUploader(baseURL, ownerID string, client, retry httpretry.HTTPDoer) *Uploader {
	if retry == nil {
		retry = client
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		ownerID: ownerID,
		client:  client,
		retry:   retry,
	}
}

// Run sends every batch in order and stops at the first rejected batch.
func (u *Uploader) Run(ctx context.Context, up Upload) (*Summary, error) {
	size := up.BatchSize
	if size <= 0 {
		size = 500
	}
	total := (len(up.Rows) + size - 1) / size
	if total == 0 {
		total = 1
	}

	sum := &Summary{Errors: []domain.RowError{}}
	for b := 0; b < total; b++ {
		start := b * size
		end := start + size
		if end > len(up.Rows) {
			end = len(up.Rows)
		}

		res, err := u.send(ctx, batchRequest{
			Rows:          up.Rows[start:end],
			Mappings:      up.Mapping,
			ListName:      up.ListName,
			FileName:      up.FileName,
			Source:        up.Source,
			ListID:        sum.ListID,
			BatchNumber:   b + 1,
			TotalBatches:  total,
			TotalRows:     len(up.Rows),
			InitialStatus: up.InitialStatus,
		})
		if err != nil {
			return sum, fmt.Errorf("batch %d/%d: %w", b+1, total, err)
		}

		sum.ListID = res.ListID
		sum.Batches++
		sum.Processed += res.TotalProcessed
		sum.Succeeded += res.SuccessCount
		sum.Failed += res.FailedCount
		for _, e := range res.Errors {
			sum.Errors = append(sum.Errors, domain.RowError{Row: start + e.Row, Error: e.Error})
		}
		if u.Progress != nil {
			u.Progress(b+1, total, res)
		}
	}
	return sum, nil
}

func (u *Uploader) send(ctx context.Context, body batchRequest) (*domain.ImportResult, error) {
	if body.Rows == nil {
		body.Rows = []datanorm.Row{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/leads/import", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if u.ownerID != "" {
		req.Header.Set("X-User-Id", u.ownerID)
	}

	doer := u.retry
	if body.ListID == "" {
		doer = u.client
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var res domain.ImportResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

// parseOverrides reads "Header=field" pairs.
func parseOverrides(mapping datanorm.FieldMapping, pairs []string) (datanorm.FieldMapping, error) {
	for _, p := range pairs {
		col, field, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("mapping %q: want Header=field", p)
		}
		var err error
		mapping, err = datanorm.Override(mapping, strings.TrimSpace(col), datanorm.CanonicalField(strings.TrimSpace(field)))
		if err != nil {
			return nil, fmt.Errorf("mapping %q: %w", p, err)
		}
	}
	return mapping, nil
}

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/pkg/httputil"
	"github.com/huffhealth/crm/internal/pkg/logger"
	"github.com/huffhealth/crm/internal/service/leadimport"
)

// multipart overhead allowed on top of the file size cap
const formOverhead = 1 << 20

// importRequest is the wire shape of one import batch.
type importRequest struct {
	Rows          []datanorm.Row        `json:"rows"`
	Mappings      datanorm.FieldMapping `json:"mappings"`
	ListName      string                `json:"listName"`
	FileName      string                `json:"fileName"`
	Source        string                `json:"source"`
	ListID        string                `json:"listId"`
	BatchNumber   int                   `json:"batchNumber"`
	TotalBatches  int                   `json:"totalBatches"`
	TotalRows     int                   `json:"totalRows"`
	InitialStatus string                `json:"initialStatus"`
}

// HandleImport processes one batch of an upload.
//
//	POST /api/leads/import
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	var body importRequest
	if !httputil.DecodeLimit(w, r, &body, h.limits.MaxFileBytes()+formOverhead) {
		return
	}
	if h.limits.MaxBatchRows > 0 && len(body.Rows) > h.limits.MaxBatchRows {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "batch_too_large",
			fmt.Sprintf("a batch may carry at most %d rows", h.limits.MaxBatchRows), nil)
		return
	}

	result, err := h.importer.Import(r.Context(), leadimport.ImportRequest{
		Rows:          body.Rows,
		Mappings:      body.Mappings,
		ListName:      body.ListName,
		FileName:      body.FileName,
		Source:        body.Source,
		ListID:        body.ListID,
		BatchNumber:   body.BatchNumber,
		TotalBatches:  body.TotalBatches,
		TotalRows:     body.TotalRows,
		InitialStatus: body.InitialStatus,
		OwnerID:       ownerID(r.Context()),
	})

	var badReq *leadimport.BadRequestError
	switch {
	case err == nil:
		httputil.OK(w, result)
	case errors.As(err, &badReq):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "bad_request", badReq.Error(),
			map[string]string{"field": badReq.Field})
	case errors.Is(err, leadimport.ErrListNotFound):
		httputil.NotFound(w, "lead list not found")
	default:
		httputil.InternalError(w, err)
	}
}

// previewResponse describes a decoded upload for the mapping step.
type previewResponse struct {
	FileName   string                `json:"fileName"`
	Format     datanorm.Format       `json:"format"`
	Headers    []string              `json:"headers"`
	Mapping    datanorm.FieldMapping `json:"mapping"`
	TotalRows  int                   `json:"totalRows"`
	SampleRows []datanorm.Row        `json:"sampleRows"`
	Rows       []datanorm.Row        `json:"rows"`
	ArchiveKey string                `json:"archiveKey,omitempty"`
}

// HandlePreview decodes an uploaded file, proposes a column mapping and
// archives the original bytes.
//
//	POST /api/leads/import/preview
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.limits.MaxFileBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid_upload", "could not read multipart upload", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if int64(len(data)) > maxBytes {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "file_too_large",
			fmt.Sprintf("file exceeds %d MB", h.limits.MaxFileMB), nil)
		return
	}

	table, format, err := datanorm.DecodeFile(header.Filename, data)
	switch {
	case errors.Is(err, datanorm.ErrUnsupportedFormat):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "unsupported_format", err.Error(), nil)
		return
	case errors.Is(err, datanorm.ErrEmptyFile):
		httputil.ErrorWithCode(w, http.StatusBadRequest, "empty_file", err.Error(), nil)
		return
	case err != nil:
		httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid_file", err.Error(), nil)
		return
	}
	if h.limits.MaxRows > 0 && len(table.Rows) > h.limits.MaxRows {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "too_many_rows",
			fmt.Sprintf("file has %d rows, the limit is %d", len(table.Rows), h.limits.MaxRows), nil)
		return
	}

	key, err := h.archive.Archive(r.Context(), header.Filename, data)
	if err != nil {
		logger.Warn("archive upload failed", "file_name", header.Filename, "error", err)
	}

	sample := table.Rows
	if n := h.limits.SampleRows; n > 0 && len(sample) > n {
		sample = sample[:n]
	}
	rows := table.Rows
	if rows == nil {
		rows = []datanorm.Row{}
	}

	httputil.OK(w, previewResponse{
		FileName:   header.Filename,
		Format:     format,
		Headers:    table.Headers,
		Mapping:    h.mapper.AutoDetect(table.Headers),
		TotalRows:  len(table.Rows),
		SampleRows: sample,
		Rows:       rows,
		ArchiveKey: key,
	})
}

type fieldInfo struct {
	Field   datanorm.CanonicalField `json:"field"`
	Aliases []string                `json:"aliases"`
}

// HandleFields lists the mapping targets and the header spellings that
// auto-map onto each.
//
//	GET /api/leads/import/fields
func (h *Handlers) HandleFields(w http.ResponseWriter, r *http.Request) {
	aliases := h.mapper.Aliases()
	fields := make([]fieldInfo, 0, len(datanorm.CanonicalFields)+1)
	for _, f := range datanorm.CanonicalFields {
		a := aliases[f]
		if a == nil {
			a = []string{}
		}
		fields = append(fields, fieldInfo{Field: f, Aliases: a})
	}
	fields = append(fields, fieldInfo{Field: datanorm.FieldSkip, Aliases: []string{}})
	httputil.OK(w, map[string]any{"fields": fields})
}

// HandleGetList returns an import ledger.
//
//	GET /api/lead-lists/{listId}
func (h *Handlers) HandleGetList(w http.ResponseWriter, r *http.Request) {
	list, err := h.importer.GetList(r.Context(), chi.URLParam(r, "listId"))
	if errors.Is(err, leadimport.ErrListNotFound) {
		httputil.NotFound(w, "lead list not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, list)
}

// HandleGetProgress returns the running tally of a multi-batch import.
//
//	GET /api/lead-lists/{listId}/progress
func (h *Handlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.importer.Progress(r.Context(), chi.URLParam(r, "listId"))
	if errors.Is(err, leadimport.ErrNoProgress) {
		httputil.NotFound(w, "no progress recorded for this list")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, p)
}

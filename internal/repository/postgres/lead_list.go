package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadimport"
)

// LeadListRepo stores import ledgers.
type LeadListRepo struct{ db *sql.DB }

// NewLeadListRepo creates a Postgres-backed lead list repository.
func NewLeadListRepo(db *sql.DB) *LeadListRepo { return &LeadListRepo{db: db} }

func (r *LeadListRepo) CreateList(ctx context.Context, list *domain.LeadList) error {
	mapping := string(list.FieldMapping)
	if mapping == "" {
		mapping = "[]"
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lead_lists (id, owner_id, name, file_name, source, total_records, field_mapping)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING created_at, updated_at
	`, list.ID, list.OwnerID, list.Name, list.FileName, list.Source, list.TotalRecords, mapping,
	).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create lead list: %w", err)
	}
	return nil
}

func (r *LeadListRepo) GetList(ctx context.Context, id string) (*domain.LeadList, error) {
	var (
		l         domain.LeadList
		mapping   []byte
		finalized sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, file_name, source, total_records, field_mapping,
		       imported_count, failed_count, finalized_at, created_at, updated_at
		FROM lead_lists
		WHERE id = $1
	`, id).Scan(
		&l.ID, &l.OwnerID, &l.Name, &l.FileName, &l.Source, &l.TotalRecords, &mapping,
		&l.ImportedCount, &l.FailedCount, &finalized, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leadimport.ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead list: %w", err)
	}
	l.FieldMapping = mapping
	l.FinalizedAt = timePtr(finalized)
	return &l, nil
}

// FinalizeList overwrites the counts; running it twice stores the latest.
func (r *LeadListRepo) FinalizeList(ctx context.Context, listID string, imported, failed int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lead_lists
		SET imported_count = $2, failed_count = $3, finalized_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, listID, imported, failed)
	if err != nil {
		return fmt.Errorf("finalize lead list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return leadimport.ErrListNotFound
	}
	return nil
}

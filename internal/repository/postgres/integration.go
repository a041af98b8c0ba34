package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/lib/pq"
)

const integrationColumns = `id, owner_id, page_id, page_name, access_token_encrypted, form_ids,
	list_id, is_active, last_synced_at, created_at, updated_at`

// IntegrationRepo stores Facebook page connections.
type IntegrationRepo struct{ db *sql.DB }

// NewIntegrationRepo creates a Postgres-backed integration repository.
func NewIntegrationRepo(db *sql.DB) *IntegrationRepo { return &IntegrationRepo{db: db} }

func (r *IntegrationRepo) GetIntegration(ctx context.Context, id string) (*domain.FacebookIntegration, error) {
	return scanIntegration(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM facebook_integrations WHERE id = $1`, id))
}

func (r *IntegrationRepo) FindIntegrationByPage(ctx context.Context, pageID string) (*domain.FacebookIntegration, error) {
	return scanIntegration(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM facebook_integrations WHERE page_id = $1`, pageID))
}

func (r *IntegrationRepo) ListActiveIntegrations(ctx context.Context) ([]*domain.FacebookIntegration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+integrationColumns+`
		FROM facebook_integrations
		WHERE is_active
		ORDER BY last_synced_at NULLS FIRST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}
	defer rows.Close()

	var out []*domain.FacebookIntegration
	for rows.Next() {
		integ, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, integ)
	}
	return out, rows.Err()
}

func (r *IntegrationRepo) UpdateLastSynced(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE facebook_integrations SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("update last synced: %w", err)
	}
	return nil
}

// SaveIntegration inserts the integration or, when the page is already
// connected, replaces its token, forms, list and owner and reactivates it.
func (r *IntegrationRepo) SaveIntegration(ctx context.Context, integ *domain.FacebookIntegration) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO facebook_integrations
			(id, owner_id, page_id, page_name, access_token_encrypted, form_ids, list_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (page_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			page_name = EXCLUDED.page_name,
			access_token_encrypted = EXCLUDED.access_token_encrypted,
			form_ids = EXCLUDED.form_ids,
			list_id = EXCLUDED.list_id,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, integ.ID, integ.OwnerID, integ.PageID, integ.PageName, integ.AccessTokenEncrypted,
		pq.Array(integ.FormIDs), nullString(integ.ListID), integ.IsActive,
	).Scan(&integ.ID, &integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	return nil
}

// AccessTokenCiphertext reads the sealed token as currently stored.
func (r *IntegrationRepo) AccessTokenCiphertext(ctx context.Context, id string) (string, error) {
	var sealed string
	err := r.db.QueryRowContext(ctx,
		`SELECT access_token_encrypted FROM facebook_integrations WHERE id = $1`, id,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", leadsync.ErrIntegrationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	return sealed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*domain.FacebookIntegration, error) {
	var (
		i      domain.FacebookIntegration
		forms  pq.StringArray
		listID sql.NullString
		synced sql.NullTime
	)
	err := row.Scan(
		&i.ID, &i.OwnerID, &i.PageID, &i.PageName, &i.AccessTokenEncrypted, &forms,
		&listID, &i.IsActive, &synced, &i.CreatedAt, &i.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leadsync.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan integration: %w", err)
	}
	i.FormIDs = []string(forms)
	i.ListID = listID.String
	i.LastSyncedAt = timePtr(synced)
	return &i, nil
}

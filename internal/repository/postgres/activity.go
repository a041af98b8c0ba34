package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/huffhealth/crm/internal/domain"
)

// ActivityRepo appends audit entries.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity repository.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) InsertActivity(ctx context.Context, a *domain.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	meta := []byte("{}")
	if len(a.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO activities (id, type, description, entity_type, entity_id, owner_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING created_at
	`, a.ID, string(a.Type), a.Description, a.EntityType, a.EntityID, a.OwnerID, string(meta),
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

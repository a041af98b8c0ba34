package domain

import "time"

// ActivityType enumerates audit events written by the lead pipeline.
type ActivityType string

const (
	ActivityLeadImport   ActivityType = "LEAD_IMPORT"
	ActivityFacebookSync ActivityType = "FACEBOOK_SYNC"
	ActivityLeadCreated  ActivityType = "LEAD_CREATED"
)

// Activity is an append-only audit entry.
type Activity struct {
	ID          string         `json:"id" db:"id"`
	Type        ActivityType   `json:"type" db:"type"`
	Description string         `json:"description" db:"description"`
	EntityType  string         `json:"entityType" db:"entity_type"`
	EntityID    string         `json:"entityId" db:"entity_id"`
	OwnerID     string         `json:"ownerId,omitempty" db:"owner_id"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
}

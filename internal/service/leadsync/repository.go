package leadsync

import (
	"context"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/facebook"
)

// Repository defines the data access contract for lead sync.
type Repository interface {
	// GetIntegration returns ErrIntegrationNotFound if it doesn't exist.
	GetIntegration(ctx context.Context, id string) (*domain.FacebookIntegration, error)

	// FindIntegrationByPage returns ErrIntegrationNotFound if no integration
	// is connected to the page.
	FindIntegrationByPage(ctx context.Context, pageID string) (*domain.FacebookIntegration, error)

	// ListActiveIntegrations returns every integration with is_active set.
	ListActiveIntegrations(ctx context.Context) ([]*domain.FacebookIntegration, error)

	// SaveIntegration inserts or replaces the integration for its page.
	SaveIntegration(ctx context.Context, integ *domain.FacebookIntegration) error

	// UpdateLastSynced moves the pull watermark.
	UpdateLastSynced(ctx context.Context, integrationID string, at time.Time) error

	// FindLeadByEmail matches case-insensitively within one owner's leads.
	// Returns ErrLeadNotFound when there is no match.
	FindLeadByEmail(ctx context.Context, ownerID, email string) (*domain.Lead, error)

	// FindLeadByCustomField matches custom_fields->>key = value within one
	// owner's leads. Returns ErrLeadNotFound when there is no match.
	FindLeadByCustomField(ctx context.Context, ownerID, key, value string) (*domain.Lead, error)

	// CreateLead inserts one lead.
	CreateLead(ctx context.Context, lead *domain.Lead) error

	// UpdateCustomFields replaces a lead's custom field bag.
	UpdateCustomFields(ctx context.Context, leadID string, fields domain.CustomFields) error

	// InsertActivity appends an audit entry.
	InsertActivity(ctx context.Context, a *domain.Activity) error
}

// LeadSource fetches leads from the ad platform. *facebook.Client
// satisfies it.
type LeadSource interface {
	GetLead(ctx context.Context, accessToken, leadID string) (*facebook.Lead, error)
	ListFormLeads(ctx context.Context, accessToken, formID string, since time.Time) ([]facebook.Lead, error)
}

// CredentialStore seals page access tokens for storage and returns them
// decrypted on use.
type CredentialStore interface {
	AccessToken(ctx context.Context, integration *domain.FacebookIntegration) (string, error)
	SealToken(ctx context.Context, token string) (string, error)
}

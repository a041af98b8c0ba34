package domain

import "time"

// FacebookIntegration connects a Facebook page's lead forms to the CRM.
// The page access token is stored encrypted and only decrypted on use.
type FacebookIntegration struct {
	ID                   string     `json:"id" db:"id"`
	OwnerID              string     `json:"ownerId" db:"owner_id"`
	PageID               string     `json:"pageId" db:"page_id"`
	PageName             string     `json:"pageName" db:"page_name"`
	AccessTokenEncrypted string     `json:"-" db:"access_token_encrypted"`
	FormIDs              []string   `json:"formIds" db:"form_ids"`
	ListID               string     `json:"listId,omitempty" db:"list_id"`
	IsActive             bool       `json:"isActive" db:"is_active"`
	LastSyncedAt         *time.Time `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`
}

// HasForm reports whether formID is one of the integration's forms.
func (i *FacebookIntegration) HasForm(formID string) bool {
	for _, f := range i.FormIDs {
		if f == formID {
			return true
		}
	}
	return false
}

// SyncResult is the outcome of one pull sync.
type SyncResult struct {
	Synced     int `json:"synced"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

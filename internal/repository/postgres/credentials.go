package postgres

import (
	"context"
	"fmt"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/secrets"
)

// CredentialStore decrypts integration access tokens on every read so a
// rotated token is picked up without a restart.
type CredentialStore struct {
	integrations *IntegrationRepo
	box          *secrets.Box
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(integrations *IntegrationRepo, box *secrets.Box) *CredentialStore {
	return &CredentialStore{integrations: integrations, box: box}
}

// AccessToken returns the integration's plaintext page token.
func (c *CredentialStore) AccessToken(ctx context.Context, integ *domain.FacebookIntegration) (string, error) {
	sealed, err := c.integrations.AccessTokenCiphertext(ctx, integ.ID)
	if err != nil {
		return "", err
	}
	token, err := c.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt access token for integration %s: %w", integ.ID, err)
	}
	return token, nil
}

// SealToken encrypts a token for storage.
func (c *CredentialStore) SealToken(_ context.Context, token string) (string, error) {
	return c.box.Seal(token)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/secrets"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var integrationRowColumns = []string{
	"id", "owner_id", "page_id", "page_name", "access_token_encrypted", "form_ids",
	"list_id", "is_active", "last_synced_at", "created_at", "updated_at",
}

func TestIntegrationRepo_GetIntegration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM facebook_integrations WHERE id = \$1`).
		WithArgs("int-1").
		WillReturnRows(sqlmock.NewRows(integrationRowColumns).AddRow(
			"int-1", "agent-7", "page-1", "Huff Health", "sealed", []byte(`{form-a,form-b}`),
			"list-1", true, now, now, now,
		))
	mock.ExpectQuery(`FROM facebook_integrations WHERE page_id = \$1`).
		WithArgs("page-x").
		WillReturnRows(sqlmock.NewRows(integrationRowColumns))

	repo := NewIntegrationRepo(db)
	integ, err := repo.GetIntegration(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"form-a", "form-b"}, integ.FormIDs)
	assert.Equal(t, "list-1", integ.ListID)
	require.NotNil(t, integ.LastSyncedAt)

	_, err = repo.FindIntegrationByPage(context.Background(), "page-x")
	assert.ErrorIs(t, err, leadsync.ErrIntegrationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepo_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE is_active`).
		WillReturnRows(sqlmock.NewRows(integrationRowColumns).
			AddRow("int-1", "a", "p1", "", "s", []byte(`{}`), nil, true, nil, now, now).
			AddRow("int-2", "b", "p2", "", "s", []byte(`{f}`), nil, true, nil, now, now))

	out, err := NewIntegrationRepo(db).ListActiveIntegrations(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].FormIDs)
	assert.Nil(t, out[0].LastSyncedAt)
	assert.Equal(t, []string{"f"}, out[1].FormIDs)
}

func TestIntegrationRepo_SaveIntegration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`ON CONFLICT \(page_id\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("int-old", now, now))

	integ := &domain.FacebookIntegration{ID: "int-new", PageID: "page-1", AccessTokenEncrypted: "sealed", FormIDs: []string{"f1"}, IsActive: true}
	require.NoError(t, NewIntegrationRepo(db).SaveIntegration(context.Background(), integ))
	assert.Equal(t, "int-old", integ.ID, "existing page keeps its id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_AccessToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	box, err := secrets.NewBox("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	store := NewCredentialStore(NewIntegrationRepo(db), box)

	sealed, err := store.SealToken(context.Background(), "EAAG-token")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT access_token_encrypted FROM facebook_integrations WHERE id = \$1`).
		WithArgs("int-1").
		WillReturnRows(sqlmock.NewRows([]string{"access_token_encrypted"}).AddRow(sealed))
	mock.ExpectQuery(`SELECT access_token_encrypted`).
		WithArgs("int-2").
		WillReturnRows(sqlmock.NewRows([]string{"access_token_encrypted"}).AddRow("garbage"))

	token, err := store.AccessToken(context.Background(), &domain.FacebookIntegration{ID: "int-1"})
	require.NoError(t, err)
	assert.Equal(t, "EAAG-token", token)

	_, err = store.AccessToken(context.Background(), &domain.FacebookIntegration{ID: "int-2"})
	assert.ErrorIs(t, err, secrets.ErrMalformedSealed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SatisfiesServiceRepositories(t *testing.T) {
	var _ leadsync.Repository = NewStore(nil)
	var _ leadimport.Repository = NewStore(nil)
	var _ leadsync.CredentialStore = (*CredentialStore)(nil)
}

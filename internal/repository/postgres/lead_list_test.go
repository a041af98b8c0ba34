package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadListRepo_CreateAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO lead_lists`).
		WithArgs("list-1", "agent-7", "Spring Expo", "expo.csv", "CSV Import", 250, "[]").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`FROM lead_lists`).
		WithArgs("list-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "name", "file_name", "source", "total_records", "field_mapping",
			"imported_count", "failed_count", "finalized_at", "created_at", "updated_at",
		}).AddRow("list-1", "agent-7", "Spring Expo", "expo.csv", "CSV Import", 250, []byte(`[]`), 0, 0, nil, now, now))
	mock.ExpectQuery(`FROM lead_lists`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewLeadListRepo(db)
	list := &domain.LeadList{ID: "list-1", OwnerID: "agent-7", Name: "Spring Expo", FileName: "expo.csv", Source: "CSV Import", TotalRecords: 250}
	require.NoError(t, repo.CreateList(context.Background(), list))
	assert.Equal(t, now, list.CreatedAt)

	got, err := repo.GetList(context.Background(), "list-1")
	require.NoError(t, err)
	assert.Equal(t, 250, got.TotalRecords)
	assert.False(t, got.IsFinalized())

	_, err = repo.GetList(context.Background(), "missing")
	assert.ErrorIs(t, err, leadimport.ErrListNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadListRepo_FinalizeList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE lead_lists\s+SET imported_count = \$2, failed_count = \$3`).
		WithArgs("list-1", 240, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE lead_lists`).
		WithArgs("missing", 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLeadListRepo(db)
	require.NoError(t, repo.FinalizeList(context.Background(), "list-1", 240, 10))
	assert.ErrorIs(t, repo.FinalizeList(context.Background(), "missing", 0, 0), leadimport.ErrListNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepo_InsertActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO activities`).
		WithArgs(sqlmock.AnyArg(), "LEAD_IMPORT", "Imported 2 of 3 leads", "lead_list", "list-1", "agent-7", `{"failedCount":1}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	a := &domain.Activity{
		Type: domain.ActivityLeadImport, Description: "Imported 2 of 3 leads",
		EntityType: "lead_list", EntityID: "list-1", OwnerID: "agent-7",
		Metadata: map[string]any{"failedCount": 1},
	}
	require.NoError(t, NewActivityRepo(db).InsertActivity(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

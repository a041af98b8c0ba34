package postgres

import "database/sql"

// Store bundles the repositories behind one connection pool. It satisfies
// both leadimport.Repository and leadsync.Repository.
type Store struct {
	*LeadRepo
	*LeadListRepo
	*ActivityRepo
	*IntegrationRepo
}

// NewStore creates a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{
		LeadRepo:        NewLeadRepo(db),
		LeadListRepo:    NewLeadListRepo(db),
		ActivityRepo:    NewActivityRepo(db),
		IntegrationRepo: NewIntegrationRepo(db),
	}
}

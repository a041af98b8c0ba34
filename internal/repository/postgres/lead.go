package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/lib/pq"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const leadInsertColumns = `id, list_id, owner_id, status, first_name, last_name, email, phone,
	company, job_title, source, notes, date_of_birth, insurance_type, plan_type, policy_status,
	policy_renewal_date, last_review_date, follow_up_date, life_event, dispute_status,
	external_lead_id, order_id, received, fund, price, custom_fields`

const leadInsertColumnCount = 27

const leadSelectColumns = leadInsertColumns + `, created_at, updated_at`

// LeadRepo stores leads.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// InsertLeads writes all leads in one statement. Rows that collide with the
// (list_id, lower(email)) index are skipped; the count of rows actually
// written is returned.
func (r *LeadRepo) InsertLeads(ctx context.Context, leads []*domain.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO leads (" + leadInsertColumns + ") VALUES ")
	args := make([]any, 0, len(leads)*leadInsertColumnCount)
	for i, l := range leads {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholders(i*leadInsertColumnCount+1, leadInsertColumnCount))
		la, err := leadArgs(l)
		if err != nil {
			return 0, err
		}
		args = append(args, la...)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert leads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk insert leads: rows affected: %w", err)
	}
	return int(n), nil
}

// InsertLead writes one lead, mapping a unique violation to
// leadimport.ErrDuplicateLead.
func (r *LeadRepo) InsertLead(ctx context.Context, lead *domain.Lead) error {
	args, err := leadArgs(lead)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO leads ("+leadInsertColumns+") VALUES "+placeholders(1, leadInsertColumnCount),
		args...,
	)
	if isUniqueViolation(err) {
		return leadimport.ErrDuplicateLead
	}
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// CreateLead inserts a lead captured outside a file import.
func (r *LeadRepo) CreateLead(ctx context.Context, lead *domain.Lead) error {
	return r.InsertLead(ctx, lead)
}

// CountLeadsInList returns the number of stored leads attached to a list.
func (r *LeadRepo) CountLeadsInList(ctx context.Context, listID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE list_id = $1`, listID).Scan(&n)
	return n, err
}

// FindLeadByEmail returns the oldest of the owner's leads with this email.
func (r *LeadRepo) FindLeadByEmail(ctx context.Context, ownerID, email string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadSelectColumns+`
		FROM leads
		WHERE owner_id = $1 AND lower(email) = lower($2)
		ORDER BY created_at
		LIMIT 1
	`, ownerID, email)
	return scanLeadRow(row)
}

// FindLeadByCustomField matches custom_fields ->> key exactly.
func (r *LeadRepo) FindLeadByCustomField(ctx context.Context, ownerID, key, value string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadSelectColumns+`
		FROM leads
		WHERE owner_id = $1 AND custom_fields ->> $2 = $3
		ORDER BY created_at
		LIMIT 1
	`, ownerID, key, value)
	return scanLeadRow(row)
}

// UpdateCustomFields replaces the custom field bag of one lead.
func (r *LeadRepo) UpdateCustomFields(ctx context.Context, leadID string, fields domain.CustomFields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal custom fields: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET custom_fields = $2::jsonb, updated_at = NOW() WHERE id = $1`,
		leadID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("update custom fields: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return leadsync.ErrLeadNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// placeholders renders "($start, ..., $start+n-1)".
func placeholders(start, n int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", start+i)
	}
	sb.WriteByte(')')
	return sb.String()
}

func leadArgs(l *domain.Lead) ([]any, error) {
	custom, err := json.Marshal(l.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("marshal custom fields for %s: %w", l.FullName(), err)
	}
	status := l.Status
	if status == "" {
		status = domain.LeadNew
	}
	return []any{
		l.ID, nullString(l.ListID), l.OwnerID, string(status), l.FirstName, l.LastName, l.Email, l.Phone,
		l.Company, l.JobTitle, l.Source, l.Notes, l.DateOfBirth, string(l.InsuranceType), l.PlanType, string(l.PolicyStatus),
		nullTime(l.PolicyRenewalDate), nullTime(l.LastReviewDate), nullTime(l.FollowUpDate), l.LifeEvent, l.DisputeStatus,
		l.ExternalLeadID, l.OrderID, l.Received, l.Fund, l.Price, string(custom),
	}, nil
}

func scanLeadRow(row *sql.Row) (*domain.Lead, error) {
	var (
		l                             domain.Lead
		listID                        sql.NullString
		status, insType, policyStatus string
		renewal, review, followUp     sql.NullTime
		custom                        []byte
	)
	err := row.Scan(
		&l.ID, &listID, &l.OwnerID, &status, &l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.Company, &l.JobTitle, &l.Source, &l.Notes, &l.DateOfBirth, &insType, &l.PlanType, &policyStatus,
		&renewal, &review, &followUp, &l.LifeEvent, &l.DisputeStatus,
		&l.ExternalLeadID, &l.OrderID, &l.Received, &l.Fund, &l.Price, &custom,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leadsync.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	l.ListID = listID.String
	l.Status = domain.LeadStatus(status)
	l.InsuranceType = domain.InsuranceType(insType)
	l.PolicyStatus = domain.PolicyStatus(policyStatus)
	l.PolicyRenewalDate = timePtr(renewal)
	l.LastReviewDate = timePtr(review)
	l.FollowUpDate = timePtr(followUp)
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &l.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields of lead %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

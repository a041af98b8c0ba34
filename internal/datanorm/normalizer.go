package datanorm

import (
	"time"

	"github.com/huffhealth/crm/internal/domain"
)

// Row rejection reasons.
const (
	ReasonMissingName = "Missing first name and last name"
)

// fullNameKeys are raw column names consulted, in order, when no name field
// was mapped.
var fullNameKeys = []string{"name", "full_name", "Name"}

// Normalizer turns decoded rows into leads. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	vocab Vocabulary
}

// NewNormalizer creates a normalizer over the given enum vocabulary.
func NewNormalizer(vocab Vocabulary) *Normalizer {
	return &Normalizer{vocab: vocab}
}

// Normalize maps one row onto a lead. Either the lead or the row error is
// non-nil.
//
// Mapped values are trimmed and written when non-empty, with later mapping
// entries overwriting earlier ones for the same field. Every other column
// with a non-blank value lands in CustomFields with its value untouched.
// Enum values outside the vocabulary and unparseable dates are dropped
// without rejecting the row.
func (n *Normalizer) Normalize(row Row, rowNumber int, mapping FieldMapping, defaultSource string) (*domain.Lead, *domain.RowError) {
	values := make(map[CanonicalField]string)
	consumed := make(map[string]bool, len(mapping))
	for _, cm := range mapping {
		if cm.TargetField == FieldSkip || cm.TargetField == "" {
			continue
		}
		consumed[cm.SourceColumn] = true
		if v, ok := row.Get(cm.SourceColumn); ok {
			if v = trimmed(v); v != "" {
				values[cm.TargetField] = v
			}
		}
	}

	lead := &domain.Lead{RowNumber: rowNumber}
	for _, c := range row.cells {
		if consumed[c.Key] || trimmed(c.Value) == "" {
			continue
		}
		lead.CustomFields.Set(c.Key, c.Value)
	}

	first, last := values[FieldFirstName], values[FieldLastName]
	if first == "" && last == "" {
		for _, key := range fullNameKeys {
			if full, ok := row.Get(key); ok && trimmed(full) != "" {
				first, last = SplitFullName(full)
				break
			}
		}
	}
	if first == "" && last == "" {
		return nil, &domain.RowError{Row: rowNumber, Error: ReasonMissingName}
	}
	if first == "" {
		first = domain.UnknownName
	}
	if last == "" {
		last = domain.UnknownName
	}
	lead.FirstName, lead.LastName = first, last

	lead.Email = values[FieldEmail]
	lead.Phone = values[FieldPhone]
	lead.Company = values[FieldCompany]
	lead.JobTitle = values[FieldJobTitle]
	lead.Notes = values[FieldNotes]
	lead.DateOfBirth = values[FieldDateOfBirth]
	lead.PlanType = values[FieldPlanType]
	lead.LifeEvent = values[FieldLifeEvent]
	lead.DisputeStatus = values[FieldDisputeStatus]
	lead.ExternalLeadID = values[FieldExternalLeadID]
	lead.OrderID = values[FieldOrderID]
	lead.Received = values[FieldReceived]
	lead.Fund = values[FieldFund]
	lead.Price = values[FieldPrice]

	if raw, ok := values[FieldInsuranceType]; ok {
		if t, ok := n.vocab.InsuranceType(raw); ok {
			lead.InsuranceType = t
		}
	}
	if raw, ok := values[FieldPolicyStatus]; ok {
		if s, ok := n.vocab.PolicyStatus(raw); ok {
			lead.PolicyStatus = s
		}
	}

	lead.PolicyRenewalDate = dateField(values[FieldPolicyRenewalDate])
	lead.LastReviewDate = dateField(values[FieldLastReviewDate])
	lead.FollowUpDate = dateField(values[FieldFollowUpDate])

	lead.Source = values[FieldSource]
	if lead.Source == "" {
		lead.Source = defaultSource
	}
	return lead, nil
}

// NormalizeAll normalizes rows in order. Row numbers are 1-based positions
// within rows.
func (n *Normalizer) NormalizeAll(rows []Row, mapping FieldMapping, defaultSource string) ([]*domain.Lead, []domain.RowError) {
	leads := make([]*domain.Lead, 0, len(rows))
	var rejected []domain.RowError
	for i, row := range rows {
		lead, rowErr := n.Normalize(row, i+1, mapping, defaultSource)
		if rowErr != nil {
			rejected = append(rejected, *rowErr)
			continue
		}
		leads = append(leads, lead)
	}
	return leads, rejected
}

func dateField(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, ok := ParseDate(raw)
	if !ok {
		return nil
	}
	return &t
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// LeadStatus enumerates the pipeline stages a lead can be in.
type LeadStatus string

const (
	LeadNew         LeadStatus = "NEW"
	LeadContacted   LeadStatus = "CONTACTED"
	LeadQualified   LeadStatus = "QUALIFIED"
	LeadProposal    LeadStatus = "PROPOSAL"
	LeadNegotiation LeadStatus = "NEGOTIATION"
	LeadWon         LeadStatus = "WON"
	LeadLost        LeadStatus = "LOST"
)

var leadStatuses = []LeadStatus{
	LeadNew, LeadContacted, LeadQualified, LeadProposal, LeadNegotiation, LeadWon, LeadLost,
}

// ParseLeadStatus resolves a client-supplied status. An empty string yields
// LeadNew.
func ParseLeadStatus(s string) (LeadStatus, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return LeadNew, nil
	}
	for _, st := range leadStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// InsuranceType is the line of coverage a lead is shopping for or holds.
type InsuranceType string

const (
	InsuranceHealth             InsuranceType = "HEALTH"
	InsuranceLife               InsuranceType = "LIFE"
	InsuranceMedicare           InsuranceType = "MEDICARE"
	InsuranceMedicareAdvantage  InsuranceType = "MEDICARE_ADVANTAGE"
	InsuranceMedicareSupplement InsuranceType = "MEDICARE_SUPPLEMENT"
	InsuranceMedicaid           InsuranceType = "MEDICAID"
	InsuranceACA                InsuranceType = "ACA"
	InsuranceDental             InsuranceType = "DENTAL"
	InsuranceVision             InsuranceType = "VISION"
	InsuranceSupplemental       InsuranceType = "SUPPLEMENTAL"
	InsuranceDisability         InsuranceType = "DISABILITY"
	InsuranceLongTermCare       InsuranceType = "LONG_TERM_CARE"
	InsuranceShortTerm          InsuranceType = "SHORT_TERM"
	InsuranceOther              InsuranceType = "OTHER"
)

// InsuranceTypes lists every accepted InsuranceType value.
var InsuranceTypes = []InsuranceType{
	InsuranceHealth, InsuranceLife, InsuranceMedicare, InsuranceMedicareAdvantage,
	InsuranceMedicareSupplement, InsuranceMedicaid, InsuranceACA, InsuranceDental,
	InsuranceVision, InsuranceSupplemental, InsuranceDisability, InsuranceLongTermCare,
	InsuranceShortTerm, InsuranceOther,
}

// PolicyStatus is the state of the lead's current policy.
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "ACTIVE"
	PolicyPending   PolicyStatus = "PENDING"
	PolicyQuoted    PolicyStatus = "QUOTED"
	PolicyLapsed    PolicyStatus = "LAPSED"
	PolicyCancelled PolicyStatus = "CANCELLED"
	PolicyExpired   PolicyStatus = "EXPIRED"
	PolicyRenewed   PolicyStatus = "RENEWED"
)

// PolicyStatuses lists every accepted PolicyStatus value.
var PolicyStatuses = []PolicyStatus{
	PolicyActive, PolicyPending, PolicyQuoted, PolicyLapsed, PolicyCancelled, PolicyExpired, PolicyRenewed,
}

// UnknownName is written into a missing first or last name when the other
// half of the name is known.
const UnknownName = "Unknown"

// Lead is a single prospect or client contact. Leads created by an import
// carry the ID of the LeadList that produced them.
type Lead struct {
	ID        string     `json:"id" db:"id"`
	ListID    string     `json:"listId,omitempty" db:"list_id"`
	OwnerID   string     `json:"ownerId,omitempty" db:"owner_id"`
	Status    LeadStatus `json:"status" db:"status"`
	FirstName string     `json:"firstName" db:"first_name"`
	LastName  string     `json:"lastName" db:"last_name"`
	Email     string     `json:"email,omitempty" db:"email"`
	Phone     string     `json:"phone,omitempty" db:"phone"`
	Company   string     `json:"company,omitempty" db:"company"`
	JobTitle  string     `json:"jobTitle,omitempty" db:"job_title"`
	Source    string     `json:"source,omitempty" db:"source"`
	Notes     string     `json:"notes,omitempty" db:"notes"`

	// DateOfBirth is stored as it arrived; consumers parse it on demand.
	DateOfBirth       string        `json:"dateOfBirth,omitempty" db:"date_of_birth"`
	InsuranceType     InsuranceType `json:"insuranceType,omitempty" db:"insurance_type"`
	PlanType          string        `json:"planType,omitempty" db:"plan_type"`
	PolicyStatus      PolicyStatus  `json:"policyStatus,omitempty" db:"policy_status"`
	PolicyRenewalDate *time.Time    `json:"policyRenewalDate,omitempty" db:"policy_renewal_date"`
	LastReviewDate    *time.Time    `json:"lastReviewDate,omitempty" db:"last_review_date"`
	FollowUpDate      *time.Time    `json:"followUpDate,omitempty" db:"follow_up_date"`
	LifeEvent         string        `json:"lifeEvent,omitempty" db:"life_event"`

	DisputeStatus  string `json:"disputeStatus,omitempty" db:"dispute_status"`
	ExternalLeadID string `json:"externalLeadId,omitempty" db:"external_lead_id"`
	OrderID        string `json:"orderId,omitempty" db:"order_id"`
	Received       string `json:"received,omitempty" db:"received"`
	Fund           string `json:"fund,omitempty" db:"fund"`
	Price          string `json:"price,omitempty" db:"price"`

	CustomFields CustomFields `json:"customFields" db:"custom_fields"`

	// RowNumber is the 1-based position of the source row within its
	// request. It is never persisted.
	RowNumber int `json:"-" db:"-"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName joins first and last name for messages.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Valid reports whether the lead can be stored.
func (l *Lead) Valid() bool {
	return strings.TrimSpace(l.FirstName) != "" && strings.TrimSpace(l.LastName) != ""
}

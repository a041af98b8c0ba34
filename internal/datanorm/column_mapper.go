package datanorm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalField is a lead attribute an uploaded column can be mapped onto.
type CanonicalField string

const (
	FieldFirstName         CanonicalField = "firstName"
	FieldLastName          CanonicalField = "lastName"
	FieldEmail             CanonicalField = "email"
	FieldPhone             CanonicalField = "phone"
	FieldCompany           CanonicalField = "company"
	FieldJobTitle          CanonicalField = "jobTitle"
	FieldSource            CanonicalField = "source"
	FieldNotes             CanonicalField = "notes"
	FieldDateOfBirth       CanonicalField = "dateOfBirth"
	FieldInsuranceType     CanonicalField = "insuranceType"
	FieldPlanType          CanonicalField = "planType"
	FieldPolicyStatus      CanonicalField = "policyStatus"
	FieldPolicyRenewalDate CanonicalField = "policyRenewalDate"
	FieldLastReviewDate    CanonicalField = "lastReviewDate"
	FieldFollowUpDate      CanonicalField = "followUpDate"
	FieldLifeEvent         CanonicalField = "lifeEvent"
	FieldDisputeStatus     CanonicalField = "disputeStatus"
	FieldExternalLeadID    CanonicalField = "externalLeadId"
	FieldOrderID           CanonicalField = "orderId"
	FieldReceived          CanonicalField = "received"
	FieldFund              CanonicalField = "fund"
	FieldPrice             CanonicalField = "price"

	// FieldSkip marks a column that is not mapped onto any attribute.
	FieldSkip CanonicalField = "skip"
)

// CanonicalFields is the declaration order of the mappable attributes. When
// a header matches aliases of two fields, the earlier field wins.
var CanonicalFields = []CanonicalField{
	FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldCompany, FieldJobTitle,
	FieldSource, FieldNotes, FieldDateOfBirth, FieldInsuranceType, FieldPlanType,
	FieldPolicyStatus, FieldPolicyRenewalDate, FieldLastReviewDate, FieldFollowUpDate,
	FieldLifeEvent, FieldDisputeStatus, FieldExternalLeadID, FieldOrderID, FieldReceived,
	FieldFund, FieldPrice,
}

// ParseTarget validates a client-supplied mapping target.
func ParseTarget(s string) (CanonicalField, error) {
	f := CanonicalField(strings.TrimSpace(s))
	if f == FieldSkip || f == "" {
		return FieldSkip, nil
	}
	for _, c := range CanonicalFields {
		if c == f {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// ColumnMapping assigns one source column to a target field.
type ColumnMapping struct {
	SourceColumn string         `json:"sourceColumn"`
	TargetField  CanonicalField `json:"targetField"`
}

// FieldMapping is the full column assignment for one upload, one entry per
// distinct source column. Order matters: when two entries target the same
// field, the later entry wins during normalization.
type FieldMapping []ColumnMapping

// Validate checks every target against the canonical field list.
func (m FieldMapping) Validate() error {
	for _, cm := range m {
		if _, err := ParseTarget(string(cm.TargetField)); err != nil {
			return fmt.Errorf("mapping for column %q: %w", cm.SourceColumn, err)
		}
	}
	return nil
}

// JSON returns the mapping serialized for the import ledger.
func (m FieldMapping) JSON() []byte {
	if m == nil {
		return []byte("[]")
	}
	data, _ := json.Marshal(m)
	return data
}

// AliasTable lists, for each canonical field, the lowercase header spellings
// that map onto it.
type AliasTable map[CanonicalField][]string

var defaultAliases = AliasTable{
	FieldFirstName: {"first_name", "firstname", "first name", "fname", "first", "given name", "given_name"},
	FieldLastName:  {"last_name", "lastname", "last name", "lname", "last", "surname", "family name", "family_name"},
	FieldEmail:     {"email", "email_address", "emailaddress", "email address", "e-mail", "e_mail", "mail"},
	FieldPhone: {"phone", "phone_number", "phonenumber", "phone number", "mobile", "mobile_phone", "cell",
		"cell_phone", "cellphone", "cell phone", "mobile phone", "telephone", "tel", "home phone", "home_phone"},
	FieldCompany:  {"company", "company_name", "companyname", "company name", "organization", "organisation", "employer", "business"},
	FieldJobTitle: {"job_title", "jobtitle", "job title", "title", "position", "occupation", "role"},
	FieldSource:   {"source", "lead_source", "leadsource", "lead source", "vendor", "channel"},
	FieldNotes:    {"notes", "note", "comments", "comment", "description", "remarks"},
	FieldDateOfBirth: {"date_of_birth", "dateofbirth", "date of birth", "dob", "birthday", "birth_date",
		"birthdate", "birth date"},
	FieldInsuranceType: {"insurance_type", "insurancetype", "insurance type", "insurance", "coverage_type",
		"coverage type", "product", "line_of_business", "line of business"},
	FieldPlanType:     {"plan_type", "plantype", "plan type", "plan", "plan_name", "plan name"},
	FieldPolicyStatus: {"policy_status", "policystatus", "policy status"},
	FieldPolicyRenewalDate: {"policy_renewal_date", "policyrenewaldate", "policy renewal date", "renewal_date",
		"renewaldate", "renewal date", "renewal"},
	FieldLastReviewDate: {"last_review_date", "lastreviewdate", "last review date", "review_date",
		"reviewdate", "review date", "last_review", "last review"},
	FieldFollowUpDate: {"follow_up_date", "followupdate", "follow up date", "follow-up date", "followup_date",
		"follow_up", "followup", "follow up", "callback_date", "callback date"},
	FieldLifeEvent:      {"life_event", "lifeevent", "life event", "qualifying_event", "qualifying event"},
	FieldDisputeStatus:  {"dispute_status", "disputestatus", "dispute status", "dispute", "disputed"},
	FieldExternalLeadID: {"external_lead_id", "externalleadid", "external lead id", "lead_id", "leadid", "lead id", "external_id", "externalid"},
	FieldOrderID:        {"order_id", "orderid", "order id", "order", "order_number", "order number", "order #"},
	FieldReceived:       {"received", "received_date", "receiveddate", "received date", "date_received", "date received"},
	FieldFund:           {"fund", "funds", "funding", "fund_type", "fund type"},
	FieldPrice:          {"price", "cost", "lead_price", "lead price", "amount"},
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() AliasTable {
	out := make(AliasTable, len(defaultAliases))
	for f, aliases := range defaultAliases {
		out[f] = append([]string(nil), aliases...)
	}
	return out
}

// Mapper proposes column mappings from an alias table. The table is indexed
// at construction and never modified; a Mapper is safe for concurrent use.
type Mapper struct {
	aliases AliasTable
	lookup  map[string]CanonicalField
}

// NewMapper indexes aliases by normalized header. A nil table uses the
// built-in aliases.
func NewMapper(aliases AliasTable) *Mapper {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	m := &Mapper{aliases: aliases, lookup: make(map[string]CanonicalField)}
	for _, field := range CanonicalFields {
		for _, alias := range aliases[field] {
			key := normalizeHeader(alias)
			if _, taken := m.lookup[key]; !taken {
				m.lookup[key] = field
			}
		}
	}
	return m
}

// Aliases returns the mapper's alias table.
func (m *Mapper) Aliases() AliasTable { return m.aliases }

// Match returns the canonical field for a header, or FieldSkip.
func (m *Mapper) Match(header string) CanonicalField {
	if f, ok := m.lookup[normalizeHeader(header)]; ok {
		return f
	}
	return FieldSkip
}

// AutoDetect proposes a mapping with one entry per distinct header, in
// first-occurrence order.
func (m *Mapper) AutoDetect(headers []string) FieldMapping {
	seen := make(map[string]bool, len(headers))
	mapping := make(FieldMapping, 0, len(headers))
	for _, h := range headers {
		if seen[h] {
			continue
		}
		seen[h] = true
		mapping = append(mapping, ColumnMapping{SourceColumn: h, TargetField: m.Match(h)})
	}
	return mapping
}

// Override returns a copy of mapping with sourceColumn re-targeted.
func Override(mapping FieldMapping, sourceColumn string, target CanonicalField) (FieldMapping, error) {
	field, err := ParseTarget(string(target))
	if err != nil {
		return nil, err
	}
	out := make(FieldMapping, len(mapping))
	copy(out, mapping)
	for i := range out {
		if out[i].SourceColumn == sourceColumn {
			out[i].TargetField = field
			return out, nil
		}
	}
	return nil, fmt.Errorf("no column named %q", sourceColumn)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

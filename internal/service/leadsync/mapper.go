package leadsync

import (
	"strings"

	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/facebook"
)

// DefaultSource labels leads whose form carries no source question.
const DefaultSource = "Facebook Lead Ad"

// Reserved custom field keys written on every Facebook lead.
const (
	KeyLeadID       = "facebookLeadId"
	KeyCreatedTime  = "facebookCreatedTime"
	KeyFormID       = "facebookFormId"
	KeyAdID         = "facebookAdId"
	KeyAdName       = "facebookAdName"
	KeyAdsetID      = "facebookAdsetId"
	KeyCampaignID   = "facebookCampaignId"
	KeyCampaignName = "facebookCampaignName"
)

// fullNameField is split when neither first_name nor last_name is answered.
const fullNameField = "full_name"

// fieldDictionary translates Lead Ads question names into lead fields.
// Names not listed here are kept in custom fields.
var fieldDictionary = map[string]datanorm.CanonicalField{
	"first_name":      datanorm.FieldFirstName,
	"last_name":       datanorm.FieldLastName,
	"email":           datanorm.FieldEmail,
	"phone_number":    datanorm.FieldPhone,
	"phone":           datanorm.FieldPhone,
	"company_name":    datanorm.FieldCompany,
	"job_title":       datanorm.FieldJobTitle,
	"date_of_birth":   datanorm.FieldDateOfBirth,
	"insurance_type":  datanorm.FieldInsuranceType,
	"plan_type":       datanorm.FieldPlanType,
	"policy_status":   datanorm.FieldPolicyStatus,
	"life_event":      datanorm.FieldLifeEvent,
	"lead_source":     datanorm.FieldSource,
	"notes":           datanorm.FieldNotes,
	"additional_info": datanorm.FieldNotes,
}

var vocabulary = datanorm.DefaultVocabulary()

// MapLead converts a Graph lead into an unsaved CRM lead. A missing first
// or last name becomes "Unknown"; a lead is never rejected for its name.
func MapLead(fb *facebook.Lead, defaultSource string) *domain.Lead {
	values := make(map[datanorm.CanonicalField]string)
	lead := &domain.Lead{Status: domain.LeadNew}
	fullName := ""

	for _, f := range fb.FieldData {
		if len(f.Values) == 0 {
			continue
		}
		v := strings.TrimSpace(f.Values[0])
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == fullNameField {
			fullName = v
			continue
		}
		target, ok := fieldDictionary[name]
		if !ok {
			if v != "" {
				lead.CustomFields.Set(f.Name, f.Values[0])
			}
			continue
		}
		if v != "" {
			values[target] = v
		}
	}

	first, last := values[datanorm.FieldFirstName], values[datanorm.FieldLastName]
	if first == "" && last == "" {
		first, last = datanorm.SplitFullName(fullName)
	}
	if first == "" {
		first = domain.UnknownName
	}
	if last == "" {
		last = domain.UnknownName
	}
	lead.FirstName, lead.LastName = first, last

	lead.Email = values[datanorm.FieldEmail]
	lead.Phone = values[datanorm.FieldPhone]
	lead.Company = values[datanorm.FieldCompany]
	lead.JobTitle = values[datanorm.FieldJobTitle]
	lead.DateOfBirth = values[datanorm.FieldDateOfBirth]
	lead.PlanType = values[datanorm.FieldPlanType]
	lead.LifeEvent = values[datanorm.FieldLifeEvent]
	lead.Notes = values[datanorm.FieldNotes]
	if t, ok := vocabulary.InsuranceType(values[datanorm.FieldInsuranceType]); ok {
		lead.InsuranceType = t
	}
	if s, ok := vocabulary.PolicyStatus(values[datanorm.FieldPolicyStatus]); ok {
		lead.PolicyStatus = s
	}

	lead.Source = values[datanorm.FieldSource]
	if lead.Source == "" {
		lead.Source = defaultSource
	}
	lead.ExternalLeadID = fb.ID

	setIf := func(key, value string) {
		if value != "" {
			lead.CustomFields.Set(key, value)
		}
	}
	setIf(KeyLeadID, fb.ID)
	setIf(KeyCreatedTime, fb.CreatedTime)
	setIf(KeyFormID, fb.FormID)
	setIf(KeyAdID, fb.AdID)
	setIf(KeyAdName, fb.AdName)
	setIf(KeyAdsetID, fb.AdsetID)
	setIf(KeyCampaignID, fb.CampaignID)
	setIf(KeyCampaignName, fb.CampaignName)

	return lead
}

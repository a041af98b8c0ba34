package facebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// graphTimeLayout is the timestamp format used by the Graph API.
const graphTimeLayout = "2006-01-02T15:04:05-0700"

// leadFields is requested on every lead read.
const leadFields = "id,created_time,field_data,ad_id,ad_name,adset_id,adset_name,campaign_id,campaign_name,form_id,is_organic"

// FieldValue is one answered question on a lead form. The first value is
// authoritative.
type FieldValue struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Lead is a lead captured by a Facebook Lead Ads form.
type Lead struct {
	ID           string       `json:"id"`
	CreatedTime  string       `json:"created_time"`
	FieldData    []FieldValue `json:"field_data"`
	AdID         string       `json:"ad_id,omitempty"`
	AdName       string       `json:"ad_name,omitempty"`
	AdsetID      string       `json:"adset_id,omitempty"`
	AdsetName    string       `json:"adset_name,omitempty"`
	CampaignID   string       `json:"campaign_id,omitempty"`
	CampaignName string       `json:"campaign_name,omitempty"`
	FormID       string       `json:"form_id,omitempty"`
	IsOrganic    bool         `json:"is_organic,omitempty"`
}

// CreatedAt parses CreatedTime.
func (l *Lead) CreatedAt() (time.Time, bool) {
	for _, layout := range []string{graphTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, l.CreatedTime); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// leadPage is one page of a form's lead listing.
type leadPage struct {
	Data   []Lead `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// APIError is the Graph API error envelope.
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsAuthError reports an expired or revoked access token.
func (e *APIError) IsAuthError() bool {
	return e.Code == 190 || e.StatusCode == 401
}

// IsPermanent reports errors a retry cannot fix: auth failures, and
// unknown or deleted objects (code 100, or a 404).
func (e *APIError) IsPermanent() bool {
	return e.IsAuthError() || e.Code == 100 || e.StatusCode == 404
}

// flexibleID accepts IDs sent either as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// WebhookPayload is the body of a page subscription callback.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes for one page.
type WebhookEntry struct {
	ID      flexibleID      `json:"id"`
	Time    int64           `json:"time"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one subscribed field change.
type WebhookChange struct {
	Field string `json:"field"`
	Value struct {
		LeadgenID   flexibleID `json:"leadgen_id"`
		PageID      flexibleID `json:"page_id"`
		FormID      flexibleID `json:"form_id"`
		AdID        flexibleID `json:"ad_id"`
		AdgroupID   flexibleID `json:"adgroup_id"`
		CreatedTime int64      `json:"created_time"`
	} `json:"value"`
}

// LeadgenEvent identifies one newly captured lead announced by a webhook.
type LeadgenEvent struct {
	LeadID string
	PageID string
	FormID string
	AdID   string
}

// String is used in task names and logs.
func (e LeadgenEvent) String() string {
	return strings.Join([]string{"page=" + e.PageID, "form=" + e.FormID, "lead=" + e.LeadID}, " ")
}

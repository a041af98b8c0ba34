package facebook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks a webhook body against its X-Hub-Signature-256
// header ("sha256=<hex>") using the app secret.
func VerifySignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" || header == "" {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign returns the header value Facebook would send for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyChallenge answers the subscription handshake. It returns the
// challenge to echo when the mode is "subscribe" and the token matches.
func VerifyChallenge(query url.Values, verifyToken string) (string, bool) {
	if verifyToken == "" {
		return "", false
	}
	if query.Get("hub.mode") != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(query.Get("hub.verify_token")), []byte(verifyToken)) {
		return "", false
	}
	return query.Get("hub.challenge"), true
}

// ParseWebhook extracts the leadgen events from a page webhook. Changes to
// other fields are ignored.
func ParseWebhook(body []byte) ([]LeadgenEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if payload.Object != "" && payload.Object != "page" {
		return nil, fmt.Errorf("unexpected webhook object %q", payload.Object)
	}

	var events []LeadgenEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" || change.Value.LeadgenID == "" {
				continue
			}
			pageID := string(change.Value.PageID)
			if pageID == "" {
				pageID = string(entry.ID)
			}
			adID := string(change.Value.AdID)
			if adID == "" {
				adID = string(change.Value.AdgroupID)
			}
			events = append(events, LeadgenEvent{
				LeadID: string(change.Value.LeadgenID),
				PageID: pageID,
				FormID: string(change.Value.FormID),
				AdID:   adID,
			})
		}
	}
	return events, nil
}

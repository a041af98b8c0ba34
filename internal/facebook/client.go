package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huffhealth/crm/internal/pkg/httpretry"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v19.0"

	pageLimit = 100
	// maxPages caps a single form listing so a misbehaving cursor cannot
	// loop forever.
	maxPages = 500
)

// Client is the Graph API client for Lead Ads.
type Client struct {
	baseURL    string
	version    string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a Graph API client. Empty values fall back to the
// public Graph endpoint and DefaultVersion.
func NewClient(baseURL, version string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// GetLead fetches a single lead by its ID.
func (c *Client) GetLead(ctx context.Context, accessToken, leadID string) (*Lead, error) {
	q := url.Values{}
	q.Set("fields", leadFields)
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, url.PathEscape(leadID), q.Encode())

	body, err := c.get(ctx, accessToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", leadID, err)
	}

	var lead Lead
	if err := json.Unmarshal(body, &lead); err != nil {
		return nil, fmt.Errorf("failed to parse lead %s: %w", leadID, err)
	}
	return &lead, nil
}

// ListFormLeads returns every lead on a form created after since, following
// the paging cursor until the Graph API reports no next page. A zero since
// lists the whole form history.
func (c *Client) ListFormLeads(ctx context.Context, accessToken, formID string, since time.Time) ([]Lead, error) {
	q := url.Values{}
	q.Set("fields", leadFields)
	q.Set("limit", fmt.Sprintf("%d", pageLimit))
	if !since.IsZero() {
		filter := []map[string]any{{
			"field":    "time_created",
			"operator": "GREATER_THAN",
			"value":    since.Unix(),
		}}
		raw, _ := json.Marshal(filter)
		q.Set("filtering", string(raw))
	}
	next := fmt.Sprintf("%s/%s/%s/leads?%s", c.baseURL, c.version, url.PathEscape(formID), q.Encode())

	var leads []Lead
	for pages := 0; next != ""; pages++ {
		if pages >= maxPages {
			return leads, fmt.Errorf("form %s: stopped after %d pages", formID, maxPages)
		}
		body, err := c.get(ctx, accessToken, next)
		if err != nil {
			return nil, fmt.Errorf("list leads for form %s: %w", formID, err)
		}

		var page leadPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse lead page for form %s: %w", formID, err)
		}
		leads = append(leads, page.Data...)

		if page.Paging.Next == next {
			break
		}
		next = page.Paging.Next
	}
	return leads, nil
}

// get performs an authenticated GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, accessToken, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return nil, envelope.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

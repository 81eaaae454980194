// Package affinity pushes assessed deals into the Affinity CRM. Organizations
// are upserted, field values written onto list entries, and assessment
// summaries attached as notes.
package affinity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://api.affinity.co"

// Client talks to the Affinity v1 API.
type Client interface {
	SearchOrganizations(ctx context.Context, term string) ([]Organization, error)
	CreateOrganization(ctx context.Context, name, domain string) (*Organization, error)
	CreateListEntry(ctx context.Context, listID, orgID int64) (*ListEntry, error)
	SetFieldValue(ctx context.Context, fieldID, entityID int64, value any) error
	CreateNote(ctx context.Context, orgID int64, content string) error
}

// Organization is an Affinity organization record.
type Organization struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ListEntry links an organization onto a pipeline list.
type ListEntry struct {
	ID       int64 `json:"id"`
	ListID   int64 `json:"list_id"`
	EntityID int64 `json:"entity_id"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = resilience.NewAdaptiveLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *resilience.AdaptiveLimiter
}

// NewClient creates an Affinity client. The key is sent as the password of a
// Basic auth pair with an empty username, per Affinity's v1 scheme.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: resilience.NewAdaptiveLimiter(rate.Limit(2), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type orgSearchResponse struct {
	Organizations []Organization `json:"organizations"`
}

func (c *httpClient) SearchOrganizations(ctx context.Context, term string) ([]Organization, error) {
	q := url.Values{}
	q.Set("term", term)

	var sr orgSearchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/organizations?"+q.Encode(), nil, &sr); err != nil {
		return nil, err
	}
	return sr.Organizations, nil
}

func (c *httpClient) CreateOrganization(ctx context.Context, name, domain string) (*Organization, error) {
	body := map[string]string{"name": name}
	if domain != "" {
		body["domain"] = domain
	}

	var org Organization
	if err := c.doJSON(ctx, http.MethodPost, "/organizations", body, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (c *httpClient) CreateListEntry(ctx context.Context, listID, orgID int64) (*ListEntry, error) {
	body := map[string]int64{"entity_id": orgID}

	var entry ListEntry
	path := fmt.Sprintf("/lists/%d/list-entries", listID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *httpClient) SetFieldValue(ctx context.Context, fieldID, entityID int64, value any) error {
	body := map[string]any{
		"field_id":  fieldID,
		"entity_id": entityID,
		"value":     value,
	}
	return c.doJSON(ctx, http.MethodPost, "/field-values", body, nil)
}

func (c *httpClient) CreateNote(ctx context.Context, orgID int64, content string) error {
	body := map[string]any{
		"organization_ids": []int64{orgID},
		"content":          content,
	}
	return c.doJSON(ctx, http.MethodPost, "/notes", body, nil)
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "affinity: rate limiter")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "affinity: marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "affinity: create request")
	}
	req.SetBasicAuth("", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "affinity: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "affinity: read response"), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
		return resilience.NewTransientError(
			eris.Errorf("affinity: rate limited: %s", string(respBody)), resp.StatusCode)
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("affinity: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("affinity: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resilience.NewParseError(eris.Wrap(err, "affinity: unmarshal response"))
		}
	}
	c.limiter.OnSuccess()
	return nil
}

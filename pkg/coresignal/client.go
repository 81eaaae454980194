// Package coresignal fetches professional profile data (employment and
// education history) for founder enrichment.
package coresignal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://api.coresignal.com/cdapi/v1"

// Client fetches member profiles.
type Client interface {
	CollectMember(ctx context.Context, linkedinURL string) (*Member, error)
}

// Member is a professional profile.
type Member struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Headline string `json:"title"`
	Location string `json:"location"`
	URL      string `json:"url"`

	Experience []Experience `json:"member_experience_collection"`
	Education  []Education  `json:"member_education_collection"`
}

// Experience is one employment entry.
type Experience struct {
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
	Description string `json:"description"`
}

// Education is one education entry.
type Education struct {
	Institution string `json:"title"`
	Degree      string `json:"subtitle"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
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

// WithRateLimit sets the request rate.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = resilience.NewAdaptiveLimiter(rate.Limit(rps), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *resilience.AdaptiveLimiter
}

// NewClient creates a Coresignal API client.
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
		limiter: resilience.NewAdaptiveLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CollectMember fetches the profile behind a LinkedIn URL. The collect
// endpoint is keyed by the profile shorthand, the last path segment.
func (c *httpClient) CollectMember(ctx context.Context, linkedinURL string) (*Member, error) {
	shorthand := profileShorthand(linkedinURL)
	if shorthand == "" {
		return nil, eris.Errorf("coresignal: no profile shorthand in %q", linkedinURL)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "coresignal: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/linkedin/member/collect/"+url.PathEscape(shorthand), nil)
	if err != nil {
		return nil, eris.Wrap(err, "coresignal: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "coresignal: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "coresignal: read response"), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("coresignal: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("coresignal: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var m Member
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "coresignal: unmarshal response"))
	}
	c.limiter.OnSuccess()
	return &m, nil
}

// profileShorthand extracts the "in/<shorthand>" segment from a profile URL.
func profileShorthand(linkedinURL string) string {
	u := strings.TrimSuffix(strings.TrimSpace(linkedinURL), "/")
	i := strings.Index(u, "/in/")
	if i < 0 {
		return ""
	}
	rest := u[i+len("/in/"):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

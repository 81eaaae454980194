// Package uspto queries the USPTO patent application search API for filings
// by applicant name.
package uspto

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://developer.uspto.gov/ds-api"

// Client searches patent applications.
type Client interface {
	ApplicationsByApplicant(ctx context.Context, applicant string) ([]Application, error)
}

// Application is one published patent application.
type Application struct {
	ApplicationNumber string `json:"applicationNumberText"`
	Title             string `json:"inventionTitle"`
	Status            string `json:"applicationStatusDescription"`
	FilingDate        string `json:"filingDate"` // ISO date
	ApplicantName     string `json:"firstApplicantName"`
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a USPTO API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
	} `json:"response"`
	Results []Application `json:"results"`
}

const pageSize = 100

func (c *httpClient) ApplicationsByApplicant(ctx context.Context, applicant string) ([]Application, error) {
	var all []Application
	for start := 0; ; start += pageSize {
		page, total, err := c.fetchPage(ctx, applicant, start)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if start+pageSize >= total || len(page) == 0 {
			return all, nil
		}
	}
}

func (c *httpClient) fetchPage(ctx context.Context, applicant string, start int) ([]Application, int, error) {
	q := url.Values{}
	q.Set("searchText", `firstApplicantName:"`+applicant+`"`)
	q.Set("start", strconv.Itoa(start))
	q.Set("rows", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/patents/application/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "uspto: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "uspto: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "uspto: read response"), 0)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, 0, resilience.NewTransientError(
			eris.Errorf("uspto: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, eris.Errorf("uspto: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, 0, resilience.NewParseError(eris.Wrap(err, "uspto: unmarshal response"))
	}
	return sr.Results, sr.Response.NumFound, nil
}

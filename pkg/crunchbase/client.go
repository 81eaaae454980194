// Package crunchbase is a minimal client for the Crunchbase v4 entity API,
// covering organization search and retrieval for firmographic enrichment.
package crunchbase

import (
	"bytes"
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

const defaultBaseURL = "https://api.crunchbase.com/api/v4"

// orgFields is the field projection requested on every organization read.
// Narrowing the projection keeps responses small and quota cheap.
var orgFields = []string{
	"identifier", "legal_name", "website_url", "short_description",
	"location_identifiers", "founded_on", "funding_total", "last_funding_type",
	"ipo_status", "num_employees_enum", "categories", "diversity_spotlights",
}

// Client performs organization lookups against the Crunchbase API.
type Client interface {
	SearchOrganizations(ctx context.Context, name string) ([]Organization, error)
	GetOrganization(ctx context.Context, entityID string) (*Organization, error)
}

// Organization is the projected view of a Crunchbase organization entity.
type Organization struct {
	UUID             string
	Permalink        string
	Name             string
	LegalName        string
	WebsiteURL       string
	Description      string
	City             string
	Region           string
	Country          string
	FoundedOn        string // ISO date, may be year-only precision
	FundingTotalUSD  *int64
	LastFundingType  string
	IPOStatus        string
	NumEmployeesEnum string // e.g. "c_00011_00050"
	Categories       []string
	Diversity        []string
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

// WithRateLimit sets the request rate. Crunchbase enforces a per-key quota,
// so the limiter adapts around 429s.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = resilience.NewAdaptiveLimiter(rate.Limit(rps), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *resilience.AdaptiveLimiter
}

// NewClient creates a Crunchbase API client.
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
		limiter: resilience.NewAdaptiveLimiter(2, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	FieldIDs []string          `json:"field_ids"`
	Query    []searchPredicate `json:"query"`
	Limit    int               `json:"limit"`
}

type searchPredicate struct {
	Type       string   `json:"type"`
	FieldID    string   `json:"field_id"`
	OperatorID string   `json:"operator_id"`
	Values     []string `json:"values"`
}

type searchResponse struct {
	Count    int         `json:"count"`
	Entities []orgEntity `json:"entities"`
}

type orgEntity struct {
	UUID       string        `json:"uuid"`
	Properties orgProperties `json:"properties"`
}

type orgProperties struct {
	Identifier struct {
		Value     string `json:"value"`
		Permalink string `json:"permalink"`
	} `json:"identifier"`
	LegalName           string `json:"legal_name"`
	WebsiteURL          string `json:"website_url"`
	ShortDescription    string `json:"short_description"`
	LocationIdentifiers []struct {
		Value        string `json:"value"`
		LocationType string `json:"location_type"`
	} `json:"location_identifiers"`
	FoundedOn struct {
		Value string `json:"value"`
	} `json:"founded_on"`
	FundingTotal struct {
		ValueUSD *int64 `json:"value_usd"`
	} `json:"funding_total"`
	LastFundingType  string `json:"last_funding_type"`
	IPOStatus        string `json:"ipo_status"`
	NumEmployeesEnum string `json:"num_employees_enum"`
	Categories       []struct {
		Value string `json:"value"`
	} `json:"categories"`
	DiversitySpotlights []struct {
		Value string `json:"value"`
	} `json:"diversity_spotlights"`
}

func (c *httpClient) SearchOrganizations(ctx context.Context, name string) ([]Organization, error) {
	req := searchRequest{
		FieldIDs: orgFields,
		Query: []searchPredicate{{
			Type:       "predicate",
			FieldID:    "identifier",
			OperatorID: "contains",
			Values:     []string{name},
		}},
		Limit: 10,
	}

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/searches/organizations", req, &resp); err != nil {
		return nil, err
	}

	out := make([]Organization, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		out = append(out, fromEntity(e))
	}
	return out, nil
}

func (c *httpClient) GetOrganization(ctx context.Context, entityID string) (*Organization, error) {
	path := "/entities/organizations/" + url.PathEscape(entityID) +
		"?field_ids=" + strings.Join(orgFields, ",")

	var e orgEntity
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &e); err != nil {
		return nil, err
	}
	org := fromEntity(e)
	return &org, nil
}

func fromEntity(e orgEntity) Organization {
	p := e.Properties
	org := Organization{
		UUID:             e.UUID,
		Permalink:        p.Identifier.Permalink,
		Name:             p.Identifier.Value,
		LegalName:        p.LegalName,
		WebsiteURL:       p.WebsiteURL,
		Description:      p.ShortDescription,
		FoundedOn:        p.FoundedOn.Value,
		FundingTotalUSD:  p.FundingTotal.ValueUSD,
		LastFundingType:  p.LastFundingType,
		IPOStatus:        p.IPOStatus,
		NumEmployeesEnum: p.NumEmployeesEnum,
	}
	for _, l := range p.LocationIdentifiers {
		switch l.LocationType {
		case "city":
			org.City = l.Value
		case "region":
			org.Region = l.Value
		case "country":
			org.Country = l.Value
		}
	}
	for _, cat := range p.Categories {
		org.Categories = append(org.Categories, cat.Value)
	}
	for _, d := range p.DiversitySpotlights {
		org.Diversity = append(org.Diversity, d.Value)
	}
	return org
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "crunchbase: rate limit wait")
	}

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return eris.Wrap(err, "crunchbase: marshal request")
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "crunchbase: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-cb-user-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "crunchbase: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "crunchbase: read response"), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("crunchbase: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("crunchbase: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resilience.NewParseError(eris.Wrap(err, "crunchbase: unmarshal response"))
	}
	c.limiter.OnSuccess()
	return nil
}

// Package scholar is a client for the Semantic Scholar graph API, used to
// resolve a paper title to citation metadata.
package scholar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://api.semanticscholar.org/graph/v1"

// paperFields projects only what the paper enrichment stores.
const paperFields = "title,abstract,authors,year,citationCount,externalIds"

// Client searches papers by title.
type Client interface {
	MatchPaper(ctx context.Context, title string) (*Paper, error)
}

// Paper is the projected view of a paper record.
type Paper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          *int   `json:"year"`
	CitationCount *int   `json:"citationCount"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
}

// AuthorNames flattens the author list.
func (p *Paper) AuthorNames() []string {
	out := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		out = append(out, a.Name)
	}
	return out
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

// WithRateLimit sets the request rate. The public API throttles hard, so the
// limiter adapts around 429s.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = resilience.NewAdaptiveLimiter(rate.Limit(rps), 1) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *resilience.AdaptiveLimiter
}

// NewClient creates a Semantic Scholar client. The API key is optional; the
// unauthenticated tier has a lower quota.
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

type matchResponse struct {
	Data []Paper `json:"data"`
}

// MatchPaper resolves a title to its closest paper record. Returns (nil, nil)
// when the index holds no match.
func (c *httpClient) MatchPaper(ctx context.Context, title string) (*Paper, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scholar: rate limit wait")
	}

	q := url.Values{}
	q.Set("query", title)
	q.Set("fields", paperFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/paper/search/match?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scholar: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scholar: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scholar: read response"), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("scholar: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	// The match endpoint 404s when nothing clears its similarity bar.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("scholar: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var mr matchResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "scholar: unmarshal response"))
	}
	c.limiter.OnSuccess()
	if len(mr.Data) == 0 {
		return nil, nil
	}
	return &mr.Data[0], nil
}

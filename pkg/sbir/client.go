// Package sbir queries the SBIR.gov award API for federal grant awards by
// firm name.
package sbir

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

const defaultBaseURL = "https://api.www.sbir.gov"

// Client lists SBIR/STTR awards for a firm.
type Client interface {
	AwardsByFirm(ctx context.Context, firm string) ([]Award, error)
}

// Award is a single SBIR/STTR award record.
type Award struct {
	Firm        string `json:"firm"`
	AwardTitle  string `json:"award_title"`
	Agency      string `json:"agency"`
	Branch      string `json:"branch"`
	Program     string `json:"program"`
	Phase       string `json:"phase"`
	AwardAmount string `json:"award_amount"`
	AwardYear   int    `json:"award_year"`
	Contract    string `json:"contract"`
}

// AmountUSD parses the award amount into whole dollars. Amounts arrive as
// decimal strings; malformed values count as zero.
func (a Award) AmountUSD() int64 {
	f, err := strconv.ParseFloat(a.AwardAmount, 64)
	if err != nil {
		return 0
	}
	return int64(f)
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

// NewClient creates an SBIR.gov API client. The API is unauthenticated.
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

const pageSize = 100

func (c *httpClient) AwardsByFirm(ctx context.Context, firm string) ([]Award, error) {
	var all []Award
	for start := 0; ; start += pageSize {
		page, err := c.fetchPage(ctx, firm, start)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (c *httpClient) fetchPage(ctx context.Context, firm string, start int) ([]Award, error) {
	q := url.Values{}
	q.Set("firm", firm)
	q.Set("rows", strconv.Itoa(pageSize))
	q.Set("start", strconv.Itoa(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/public/api/awards?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "sbir: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "sbir: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "sbir: read response"), 0)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("sbir: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sbir: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var awards []Award
	if err := json.Unmarshal(body, &awards); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "sbir: unmarshal response"))
	}
	return awards, nil
}

// Package clinicaltrials queries the ClinicalTrials.gov v2 API for studies
// sponsored by a company.
package clinicaltrials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://clinicaltrials.gov/api/v2"

// studyFields projects only what the enrichment writer stores.
const studyFields = "NCTId,BriefTitle,Phase,OverallStatus,Condition,StartDate"

// Client lists studies by sponsor.
type Client interface {
	StudiesBySponsor(ctx context.Context, sponsor string) ([]Study, error)
}

// Study is the projected view of one registered study.
type Study struct {
	NCTID      string
	Title      string
	Phases     []string
	Status     string
	Conditions []string
	StartDate  string // ISO date, may be year-month precision
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

// NewClient creates a ClinicalTrials.gov API client.
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

type studiesResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Studies       []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus   string `json:"overallStatus"`
				StartDateStruct struct {
					Date string `json:"date"`
				} `json:"startDateStruct"`
			} `json:"statusModule"`
			DesignModule struct {
				Phases []string `json:"phases"`
			} `json:"designModule"`
			ConditionsModule struct {
				Conditions []string `json:"conditions"`
			} `json:"conditionsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

func (c *httpClient) StudiesBySponsor(ctx context.Context, sponsor string) ([]Study, error) {
	var all []Study
	pageToken := ""
	for {
		resp, err := c.fetchPage(ctx, sponsor, pageToken)
		if err != nil {
			return nil, err
		}
		for _, s := range resp.Studies {
			p := s.ProtocolSection
			all = append(all, Study{
				NCTID:      p.IdentificationModule.NCTID,
				Title:      p.IdentificationModule.BriefTitle,
				Phases:     p.DesignModule.Phases,
				Status:     p.StatusModule.OverallStatus,
				Conditions: p.ConditionsModule.Conditions,
				StartDate:  p.StatusModule.StartDateStruct.Date,
			})
		}
		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *httpClient) fetchPage(ctx context.Context, sponsor, pageToken string) (*studiesResponse, error) {
	q := url.Values{}
	q.Set("query.spons", sponsor)
	q.Set("fields", studyFields)
	q.Set("pageSize", "100")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/studies?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltrials: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "clinicaltrials: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "clinicaltrials: read response"), 0)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("clinicaltrials: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("clinicaltrials: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr studiesResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "clinicaltrials: unmarshal response"))
	}
	return &sr, nil
}

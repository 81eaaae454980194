// Package arxiv queries the arXiv Atom API to locate a paper and its PDF by
// title.
package arxiv

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/resilience"
)

const defaultBaseURL = "https://export.arxiv.org/api"

// Client searches arXiv.
type Client interface {
	FindByTitle(ctx context.Context, title string) (*Entry, error)
}

// Entry is one arXiv result.
type Entry struct {
	ID        string
	Title     string
	Summary   string
	Published string
	Authors   []string
	PDFURL    string
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

// NewClient creates an arXiv API client. The API is unauthenticated.
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

// feed mirrors the Atom response shape.
type feed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []feedEntry `xml:"entry"`
}

type feedEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"link"`
}

// FindByTitle searches for an exact-title match. Returns (nil, nil) when no
// entry's title matches.
func (c *httpClient) FindByTitle(ctx context.Context, title string) (*Entry, error) {
	q := url.Values{}
	q.Set("search_query", `ti:"`+title+`"`)
	q.Set("max_results", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "arxiv: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "arxiv: read response"), 0)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("arxiv: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("arxiv: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "arxiv: unmarshal feed"))
	}

	want := normalizeTitle(title)
	for _, e := range f.Entries {
		if normalizeTitle(e.Title) != want {
			continue
		}
		entry := &Entry{
			ID:        e.ID,
			Title:     strings.TrimSpace(e.Title),
			Summary:   strings.TrimSpace(e.Summary),
			Published: e.Published,
		}
		for _, a := range e.Authors {
			entry.Authors = append(entry.Authors, a.Name)
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				entry.PDFURL = l.Href
				break
			}
		}
		return entry, nil
	}
	return nil, nil
}

// normalizeTitle collapses whitespace and case for comparison; Atom titles
// often fold across lines.
func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

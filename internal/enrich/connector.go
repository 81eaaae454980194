// Package enrich wraps each external data source behind a uniform
// search-then-fetch contract and houses the writers that land results on
// company, founder, and paper records through the field-merge policy.
package enrich

import "context"

// Criteria carries the lookup keys a connector may use. Each connector reads
// only the keys relevant to its source.
type Criteria struct {
	CompanyName string
	Website     string
	LinkedInURL string
	PaperTitle  string
}

// Match identifies the best record a search found. The ID is the connector's
// native identifier, usable with Fetch.
type Match struct {
	ID   string
	Name string
}

// Connector is the uniform two-step contract over an external source.
// Search returns (nil, nil) when nothing matches — a first-class outcome,
// not an error. Fetch returns the normalized attribute map for a matched
// record, keyed by the columns the target entity merges; it too returns
// (nil, nil) when the identifier resolves to nothing.
type Connector interface {
	Name() string
	Search(ctx context.Context, criteria Criteria) (*Match, error)
	Fetch(ctx context.Context, id string) (map[string]any, error)
}

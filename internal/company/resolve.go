// Package company handles company identity resolution: matching an incoming
// deck or CRM row to an existing company record, or creating one.
package company

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/store"
)

// ErrAmbiguous is returned when the lookup keys match more than one existing
// company. Callers decide what that means: deal creation leaves the deal
// unlinked, batch import surfaces it to the operator.
var ErrAmbiguous = eris.New("company: lookup matched multiple companies")

// Store is the slice of the persistence layer resolution needs.
type Store interface {
	FindCompanies(ctx context.Context, lookup store.CompanyLookup) ([]model.Company, error)
	CreateCompany(ctx context.Context, c *model.Company) error
	LinkDealCompany(ctx context.Context, dealID, companyID uuid.UUID) error
}

// Resolver handles company deduplication and identity resolution.
type Resolver struct {
	store Store
}

// NewResolver creates a company resolver.
func NewResolver(st Store) *Resolver {
	return &Resolver{store: st}
}

// FindOrCreate resolves a seed company against the store. Any of website,
// name, or crunchbase id can match; exactly one existing row wins. Zero
// matches creates a new record from the seed. Multiple matches return
// ErrAmbiguous without writing anything.
//
// A seed with no usable key at all still creates a record, under a synthetic
// name, so downstream enrichment has a row to converge on.
//
// Returns the company and whether it was newly created.
func (r *Resolver) FindOrCreate(ctx context.Context, seed model.Company) (*model.Company, bool, error) {
	seed.Website = normalizeWebsite(seed.Website)
	if seed.Domain == "" {
		seed.Domain = normalizeDomain(seed.Website)
	}

	// The store matches names by their folded key, so the raw name is enough.
	lookup := store.CompanyLookup{
		Website:      seed.Website,
		Name:         strings.TrimSpace(seed.Name),
		CrunchbaseID: seed.CrunchbaseID,
	}

	if !lookup.Empty() {
		matches, err := r.store.FindCompanies(ctx, lookup)
		if err != nil {
			return nil, false, eris.Wrap(err, "company: lookup")
		}
		switch len(matches) {
		case 0:
			// fall through to create
		case 1:
			zap.L().Debug("resolve: matched existing company",
				zap.String("company_id", matches[0].ID.String()),
				zap.String("name", matches[0].Name),
			)
			return &matches[0], false, nil
		default:
			zap.L().Warn("resolve: ambiguous company lookup",
				zap.String("name", lookup.Name),
				zap.String("website", lookup.Website),
				zap.Int("matches", len(matches)),
			)
			return nil, false, ErrAmbiguous
		}
	}

	if seed.Name == "" {
		seed.Name = "unknown-" + uuid.NewString()[:8]
	}
	if err := r.store.CreateCompany(ctx, &seed); err != nil {
		return nil, false, eris.Wrap(err, "company: create")
	}
	zap.L().Info("resolve: created new company",
		zap.String("company_id", seed.ID.String()),
		zap.String("name", seed.Name),
		zap.String("domain", seed.Domain),
	)
	return &seed, true, nil
}

// ResolveAndLink resolves the seed and links the deal to the result. On an
// ambiguous lookup the deal is left unlinked and no error is returned; the
// deal stays a draft for an operator to link by hand.
func (r *Resolver) ResolveAndLink(ctx context.Context, dealID uuid.UUID, seed model.Company) (*model.Company, error) {
	c, _, err := r.FindOrCreate(ctx, seed)
	if err != nil {
		if eris.Is(err, ErrAmbiguous) {
			zap.L().Info("resolve: leaving deal unlinked",
				zap.String("deal_id", dealID.String()),
				zap.String("name", seed.Name),
			)
			return nil, nil
		}
		return nil, err
	}
	if err := r.store.LinkDealCompany(ctx, dealID, c.ID); err != nil {
		return nil, eris.Wrap(err, "company: link deal")
	}
	return c, nil
}

func normalizeWebsite(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	u = strings.TrimSuffix(u, "/")
	return strings.ToLower(u)
}

func normalizeDomain(rawURL string) string {
	d := strings.TrimSpace(rawURL)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	d = strings.TrimSuffix(d, "/")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

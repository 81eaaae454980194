package enrich

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/merge"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/crunchbase"
)

// Firmographic wraps the Crunchbase organization source.
type Firmographic struct {
	client crunchbase.Client
}

// NewFirmographic creates the firmographic connector.
func NewFirmographic(client crunchbase.Client) *Firmographic {
	return &Firmographic{client: client}
}

func (f *Firmographic) Name() string { return "crunchbase" }

// Search picks the best organization for the criteria: a website-domain match
// wins, otherwise the first name hit.
func (f *Firmographic) Search(ctx context.Context, criteria Criteria) (*Match, error) {
	if criteria.CompanyName == "" {
		return nil, nil
	}

	orgs, err := f.client.SearchOrganizations(ctx, criteria.CompanyName)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: firmographic search")
	}
	if len(orgs) == 0 {
		return nil, nil
	}

	if criteria.Website != "" {
		want := hostOf(criteria.Website)
		for _, org := range orgs {
			if want != "" && hostOf(org.WebsiteURL) == want {
				return &Match{ID: org.UUID, Name: org.Name}, nil
			}
		}
	}
	return &Match{ID: orgs[0].UUID, Name: orgs[0].Name}, nil
}

// Fetch pulls the full organization record and normalizes it to company
// merge columns.
func (f *Firmographic) Fetch(ctx context.Context, id string) (map[string]any, error) {
	org, err := f.client.GetOrganization(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: firmographic fetch")
	}
	if org == nil {
		return nil, nil
	}

	attrs := map[string]any{
		"name":               org.Name,
		"legal_name":         org.LegalName,
		"website":            org.WebsiteURL,
		"domain":             hostOf(org.WebsiteURL),
		"description":        org.Description,
		"city":               org.City,
		"state":              org.Region,
		"country":            org.Country,
		"last_funding_stage": org.LastFundingType,
		"ipo_status":         org.IPOStatus,
		"industries":         org.Categories,
		"crunchbase_id":      org.UUID,
	}
	if y := yearOf(org.FoundedOn); y != nil {
		attrs["founded_year"] = y
	}
	if org.FundingTotalUSD != nil {
		attrs["funding_total_usd"] = org.FundingTotalUSD
	}
	if lo, hi, ok := parseEmployeesEnum(org.NumEmployeesEnum); ok {
		attrs["employee_count_min"] = lo
		if hi != nil {
			attrs["employee_count_max"] = hi
		}
	}
	for _, d := range org.Diversity {
		lower := strings.ToLower(d)
		if strings.Contains(lower, "women") {
			attrs["women_founded"] = true
		}
		if strings.Contains(lower, "minority") {
			attrs["minority_founded"] = true
		}
	}
	return attrs, nil
}

// parseEmployeesEnum decodes Crunchbase's range enum, e.g. "c_00011_00050"
// into (11, 50). Open-ended ranges like "c_10001_max" yield a nil upper bound.
func parseEmployeesEnum(enum string) (int, *int, bool) {
	parts := strings.Split(strings.TrimPrefix(enum, "c_"), "_")
	if len(parts) != 2 {
		return 0, nil, false
	}
	lo, err := strconv.Atoi(strings.TrimLeft(parts[0], "0"))
	if err != nil {
		return 0, nil, false
	}
	if parts[1] == "max" {
		return lo, nil, true
	}
	hi, err := strconv.Atoi(strings.TrimLeft(parts[1], "0"))
	if err != nil {
		return 0, nil, false
	}
	return lo, &hi, true
}

// hostOf extracts a comparable bare domain from a URL or hostname.
func hostOf(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

// yearOf extracts the year from an ISO date that may be year-only precision.
func yearOf(iso string) *int {
	if len(iso) < 4 {
		return nil
	}
	y, err := strconv.Atoi(iso[:4])
	if err != nil || y < 1600 {
		return nil
	}
	return &y
}

// companyStore is the slice of the store the company writers need.
type companyStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	UpdateCompanyFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

// CompanyRefresher lands firmographic attributes on a company record.
type CompanyRefresher struct {
	conn  Connector
	store companyStore
}

// NewCompanyRefresher creates the writer.
func NewCompanyRefresher(conn Connector, store companyStore) *CompanyRefresher {
	return &CompanyRefresher{conn: conn, store: store}
}

// Refresh pulls the company's firmographic record and merges it under the
// non-overwrite policy, persisting only the columns that actually changed.
// A source no-match leaves the record untouched.
func (r *CompanyRefresher) Refresh(ctx context.Context, companyID uuid.UUID) error {
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh company %s", companyID)
	}
	log := zap.L().With(zap.String("company_id", companyID.String()), zap.String("source", r.conn.Name()))

	id := company.CrunchbaseID
	if id == "" {
		match, err := r.conn.Search(ctx, Criteria{CompanyName: company.Name, Website: company.Website})
		if err != nil {
			return eris.Wrapf(err, "enrich: refresh company %s", companyID)
		}
		if match == nil {
			log.Info("no firmographic match")
			return nil
		}
		id = match.ID
	}

	attrs, err := r.conn.Fetch(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh company %s", companyID)
	}
	if attrs == nil {
		log.Info("firmographic record gone", zap.String("source_id", id))
		return nil
	}

	changed, err := merge.Apply(company, attrs, false)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh company %s", companyID)
	}
	if len(changed) == 0 {
		log.Debug("nothing to update")
		return nil
	}

	fields, err := merge.Select(company, changed)
	if err != nil {
		return eris.Wrapf(err, "enrich: refresh company %s", companyID)
	}
	if err := r.store.UpdateCompanyFields(ctx, companyID, fields); err != nil {
		return eris.Wrapf(err, "enrich: refresh company %s", companyID)
	}

	log.Info("company refreshed", zap.Strings("columns", changed))
	return nil
}

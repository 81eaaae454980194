// Package store persists the deal-flow data model. Two backends implement
// the same interface: postgres (pgx) for deployments and sqlite for local
// work. Enrichment writers scope their updates to the columns the field-merge
// policy actually changed, so concurrent branches touching different columns
// do not clobber each other.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sells-group/dealflow/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// CompanyLookup carries the OR-ed identifying criteria for company
// resolution. Empty fields are ignored.
type CompanyLookup struct {
	Website      string
	Name         string
	CrunchbaseID string
}

// Empty reports whether no lookup key was supplied at all.
func (l CompanyLookup) Empty() bool {
	return l.Website == "" && l.Name == "" && l.CrunchbaseID == ""
}

// DealFilter selects deals for listing.
type DealFilter struct {
	Status           model.DealStatus
	ProcessingStatus model.ProcessingStatus
	Limit            int
	Offset           int
}

// Store is the persistence interface for the ingestion pipeline.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	FindCompanies(ctx context.Context, lookup CompanyLookup) ([]model.Company, error)
	UpdateCompanyFields(ctx context.Context, id uuid.UUID, fields map[string]any) error

	// Deals
	CreateDeal(ctx context.Context, d *model.Deal) error
	GetDeal(ctx context.Context, id uuid.UUID) (*model.Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error)
	UpdateDealFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	LinkDealCompany(ctx context.Context, dealID, companyID uuid.UUID) error
	SetDealProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error
	SetDealTags(ctx context.Context, id uuid.UUID, industries, dualUseSignals []string) error

	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	LatestAssessment(ctx context.Context, dealID uuid.UUID) (*model.Assessment, error)

	// Files
	CreateFile(ctx context.Context, f *model.File) error
	GetFile(ctx context.Context, id uuid.UUID) (*model.File, error)
	ListDealFiles(ctx context.Context, dealID uuid.UUID) ([]model.File, error)
	SetFileProcessingStatus(ctx context.Context, id uuid.UUID, status model.ProcessingStatus) error
	SetFileBlobPath(ctx context.Context, id uuid.UUID, blobPath string) error
	SetFileText(ctx context.Context, id uuid.UUID, rawText, cleanText string) error
	SetPaperMeta(ctx context.Context, id uuid.UUID, meta *model.PaperMeta) error
	SetPaperEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	ReplaceDeckPages(ctx context.Context, fileID uuid.UUID, pages []model.DeckPage) error
	ListDeckPages(ctx context.Context, fileID uuid.UUID) ([]model.DeckPage, error)

	// Founders
	CreateFounder(ctx context.Context, f *model.Founder) error
	GetFounder(ctx context.Context, id uuid.UUID) (*model.Founder, error)
	UpdateFounderFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpsertFounding(ctx context.Context, f *model.Founding) error
	GetFounding(ctx context.Context, founderID, companyID uuid.UUID) (*model.Founding, error)
	ListCompanyFounders(ctx context.Context, companyID uuid.UUID) ([]model.Founder, error)

	// Enrichment children: each pull replaces the full set for the company.
	ReplaceGrants(ctx context.Context, companyID uuid.UUID, grants []model.Grant) error
	ReplacePatentApplications(ctx context.Context, companyID uuid.UUID, apps []model.PatentApplication) error
	ReplaceClinicalStudies(ctx context.Context, companyID uuid.UUID, studies []model.ClinicalStudy) error
	ListGrants(ctx context.Context, companyID uuid.UUID) ([]model.Grant, error)
	ListPatentApplications(ctx context.Context, companyID uuid.UUID) ([]model.PatentApplication, error)
	ListClinicalStudies(ctx context.Context, companyID uuid.UUID) ([]model.ClinicalStudy, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// companyColumns whitelists the columns a partial company update may touch.
// Matches the merge tags on model.Company.
var companyColumns = map[string]bool{
	"name": true, "name_key": true, "legal_name": true, "website": true, "domain": true,
	"description": true, "city": true, "state": true, "country": true,
	"founded_year": true, "funding_total_usd": true, "last_funding_stage": true,
	"ipo_status": true, "employee_count_min": true, "employee_count_max": true,
	"revenue_usd_min": true, "revenue_usd_max": true, "women_founded": true,
	"minority_founded": true, "industries": true, "technology_types": true,
	"crunchbase_id": true,
}

// withNameKey keeps the derived name_key column in step with a name update.
// Returns a copy so the caller's map is untouched.
func withNameKey(fields map[string]any) map[string]any {
	name, ok := fields["name"].(string)
	if !ok {
		return fields
	}
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["name_key"] = model.NameKey(name)
	return out
}

// dealColumns whitelists partial deal update columns.
var dealColumns = map[string]bool{
	"stage": true, "funding_type": true, "raise_amount_usd": true, "summary": true,
}

// founderColumns whitelists partial founder update columns.
var founderColumns = map[string]bool{
	"name": true, "headline": true, "location": true, "linkedin_url": true,
	"coresignal_id": true, "experience_json": true, "education_json": true,
	"graduation_year": true,
}

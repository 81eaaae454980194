package enrich

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/clinicaltrials"
)

// Clinical wraps the registered-study source, keyed by sponsor name.
type Clinical struct {
	client clinicaltrials.Client
}

// NewClinical creates the clinical trials connector.
func NewClinical(client clinicaltrials.Client) *Clinical {
	return &Clinical{client: client}
}

func (c *Clinical) Name() string { return "clinicaltrials" }

func (c *Clinical) Search(_ context.Context, criteria Criteria) (*Match, error) {
	if criteria.CompanyName == "" {
		return nil, nil
	}
	return &Match{ID: criteria.CompanyName, Name: criteria.CompanyName}, nil
}

func (c *Clinical) Fetch(ctx context.Context, sponsor string) (map[string]any, error) {
	studies, err := c.client.StudiesBySponsor(ctx, sponsor)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: clinical fetch")
	}
	return map[string]any{"studies": studies}, nil
}

type clinicalStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ReplaceClinicalStudies(ctx context.Context, companyID uuid.UUID, studies []model.ClinicalStudy) error
}

// ClinicalPuller replaces a company's registered-study set.
type ClinicalPuller struct {
	conn  Connector
	store clinicalStore
}

// NewClinicalPuller creates the writer.
func NewClinicalPuller(conn Connector, store clinicalStore) *ClinicalPuller {
	return &ClinicalPuller{conn: conn, store: store}
}

// Pull fetches studies sponsored by the company and replaces the set.
func (p *ClinicalPuller) Pull(ctx context.Context, companyID uuid.UUID) error {
	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull clinical studies %s", companyID)
	}

	match, err := p.conn.Search(ctx, Criteria{CompanyName: company.Name})
	if err != nil {
		return eris.Wrapf(err, "enrich: pull clinical studies %s", companyID)
	}
	if match == nil {
		zap.L().Info("no clinical source key", zap.String("company_id", companyID.String()))
		return nil
	}

	attrs, err := p.conn.Fetch(ctx, match.ID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull clinical studies %s", companyID)
	}

	studies, _ := attrs["studies"].([]clinicaltrials.Study)
	records := make([]model.ClinicalStudy, 0, len(studies))
	for _, s := range studies {
		records = append(records, model.ClinicalStudy{
			ID:         uuid.New(),
			CompanyID:  companyID,
			NCTID:      s.NCTID,
			Title:      s.Title,
			Phase:      strings.Join(s.Phases, ", "),
			Status:     s.Status,
			Conditions: s.Conditions,
			StartedAt:  parseISODate(s.StartDate),
		})
	}

	if err := p.store.ReplaceClinicalStudies(ctx, companyID, records); err != nil {
		return eris.Wrapf(err, "enrich: pull clinical studies %s", companyID)
	}
	zap.L().Info("clinical studies replaced",
		zap.String("company_id", companyID.String()),
		zap.Int("count", len(records)))
	return nil
}

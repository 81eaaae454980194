package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/uspto"
)

// Patents wraps the patent application source, keyed by applicant name.
type Patents struct {
	client uspto.Client
}

// NewPatents creates the patents connector.
func NewPatents(client uspto.Client) *Patents {
	return &Patents{client: client}
}

func (p *Patents) Name() string { return "uspto" }

func (p *Patents) Search(_ context.Context, criteria Criteria) (*Match, error) {
	if criteria.CompanyName == "" {
		return nil, nil
	}
	return &Match{ID: criteria.CompanyName, Name: criteria.CompanyName}, nil
}

func (p *Patents) Fetch(ctx context.Context, applicant string) (map[string]any, error) {
	apps, err := p.client.ApplicationsByApplicant(ctx, applicant)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: patents fetch")
	}
	return map[string]any{"applications": apps}, nil
}

type patentStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ReplacePatentApplications(ctx context.Context, companyID uuid.UUID, apps []model.PatentApplication) error
}

// PatentsPuller replaces a company's full patent application set.
type PatentsPuller struct {
	conn  Connector
	store patentStore
}

// NewPatentsPuller creates the writer.
func NewPatentsPuller(conn Connector, store patentStore) *PatentsPuller {
	return &PatentsPuller{conn: conn, store: store}
}

// Pull fetches applications by applicant name and replaces the set.
func (p *PatentsPuller) Pull(ctx context.Context, companyID uuid.UUID) error {
	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull patents %s", companyID)
	}

	match, err := p.conn.Search(ctx, Criteria{CompanyName: company.Name})
	if err != nil {
		return eris.Wrapf(err, "enrich: pull patents %s", companyID)
	}
	if match == nil {
		zap.L().Info("no patent source key", zap.String("company_id", companyID.String()))
		return nil
	}

	attrs, err := p.conn.Fetch(ctx, match.ID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull patents %s", companyID)
	}

	apps, _ := attrs["applications"].([]uspto.Application)
	records := make([]model.PatentApplication, 0, len(apps))
	for _, a := range apps {
		records = append(records, model.PatentApplication{
			ID:                uuid.New(),
			CompanyID:         companyID,
			ApplicationNumber: a.ApplicationNumber,
			Title:             a.Title,
			Status:            a.Status,
			FiledAt:           parseISODate(a.FilingDate),
		})
	}

	if err := p.store.ReplacePatentApplications(ctx, companyID, records); err != nil {
		return eris.Wrapf(err, "enrich: pull patents %s", companyID)
	}
	zap.L().Info("patent applications replaced",
		zap.String("company_id", companyID.String()),
		zap.Int("count", len(records)))
	return nil
}

// parseISODate handles full-date, year-month, and year-only precision.
func parseISODate(s string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

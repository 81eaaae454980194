package enrich

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/sbir"
)

// Grants wraps the SBIR/STTR award source. Awards are keyed by firm name, so
// Search resolves to the firm name itself and Fetch performs the pull.
type Grants struct {
	client sbir.Client
}

// NewGrants creates the grants connector.
func NewGrants(client sbir.Client) *Grants {
	return &Grants{client: client}
}

func (g *Grants) Name() string { return "sbir" }

func (g *Grants) Search(_ context.Context, criteria Criteria) (*Match, error) {
	if criteria.CompanyName == "" {
		return nil, nil
	}
	return &Match{ID: criteria.CompanyName, Name: criteria.CompanyName}, nil
}

func (g *Grants) Fetch(ctx context.Context, firm string) (map[string]any, error) {
	awards, err := g.client.AwardsByFirm(ctx, firm)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: grants fetch")
	}
	return map[string]any{"awards": awards}, nil
}

type grantStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ReplaceGrants(ctx context.Context, companyID uuid.UUID, grants []model.Grant) error
}

// GrantsPuller replaces a company's full grant set from the award source.
type GrantsPuller struct {
	conn  Connector
	store grantStore
}

// NewGrantsPuller creates the writer.
func NewGrantsPuller(conn Connector, store grantStore) *GrantsPuller {
	return &GrantsPuller{conn: conn, store: store}
}

// Pull fetches awards for the company and replaces its grant rows. An empty
// pull writes the empty set; concurrent pulls for the same company race.
func (p *GrantsPuller) Pull(ctx context.Context, companyID uuid.UUID) error {
	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull grants %s", companyID)
	}

	match, err := p.conn.Search(ctx, Criteria{CompanyName: company.Name})
	if err != nil {
		return eris.Wrapf(err, "enrich: pull grants %s", companyID)
	}
	if match == nil {
		zap.L().Info("no grant source key", zap.String("company_id", companyID.String()))
		return nil
	}

	attrs, err := p.conn.Fetch(ctx, match.ID)
	if err != nil {
		return eris.Wrapf(err, "enrich: pull grants %s", companyID)
	}

	awards, _ := attrs["awards"].([]sbir.Award)
	grants := make([]model.Grant, 0, len(awards))
	for _, a := range awards {
		grants = append(grants, model.Grant{
			ID:        uuid.New(),
			CompanyID: companyID,
			Agency:    a.Agency,
			Program:   a.Program,
			Title:     a.AwardTitle,
			Phase:     a.Phase,
			AmountUSD: a.AmountUSD(),
			AwardYear: a.AwardYear,
		})
	}

	if err := p.store.ReplaceGrants(ctx, companyID, grants); err != nil {
		return eris.Wrapf(err, "enrich: pull grants %s", companyID)
	}
	zap.L().Info("grants replaced",
		zap.String("company_id", companyID.String()),
		zap.Int("count", len(grants)))
	return nil
}

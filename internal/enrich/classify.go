package enrich

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/assistant"
	"github.com/sells-group/dealflow/internal/merge"
)

// classifier is the slice of the assistant the writer needs.
type classifier interface {
	ClassifyCompany(ctx context.Context, description string) (*assistant.Classification, error)
}

// Classifier assigns taxonomy tags to a company from its description.
type Classifier struct {
	llm   classifier
	store companyStore
}

// NewClassifier creates the writer.
func NewClassifier(llm classifier, store companyStore) *Classifier {
	return &Classifier{llm: llm, store: store}
}

// Classify runs the taxonomy assignment and merges the tags under the
// non-overwrite policy. Companies without a description are skipped.
func (c *Classifier) Classify(ctx context.Context, companyID uuid.UUID) error {
	company, err := c.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrapf(err, "enrich: classify company %s", companyID)
	}
	log := zap.L().With(zap.String("company_id", companyID.String()))

	if company.Description == "" {
		log.Info("company has no description to classify")
		return nil
	}

	cls, err := c.llm.ClassifyCompany(ctx, company.Description)
	if err != nil {
		return eris.Wrapf(err, "enrich: classify company %s", companyID)
	}

	changed, err := merge.Apply(company, map[string]any{
		"industries":       cls.Industries,
		"technology_types": cls.TechnologyTypes,
	}, false)
	if err != nil {
		return eris.Wrapf(err, "enrich: classify company %s", companyID)
	}
	if len(changed) == 0 {
		return nil
	}

	fields, err := merge.Select(company, changed)
	if err != nil {
		return eris.Wrapf(err, "enrich: classify company %s", companyID)
	}
	if err := c.store.UpdateCompanyFields(ctx, companyID, fields); err != nil {
		return eris.Wrapf(err, "enrich: classify company %s", companyID)
	}

	log.Info("company classified", zap.Strings("columns", changed))
	return nil
}

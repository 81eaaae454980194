package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/sells-group/dealflow/internal/config"
)

// Starter launches pipeline workflows. Workflow IDs are derived from entity
// keys so a re-submission of the same entity dedupes against the running
// execution.
type Starter struct {
	tc    temporalclient.Client
	queue string
}

// NewStarter creates a Starter for the configured queue.
func NewStarter(tc temporalclient.Client, cfg config.TemporalConfig) *Starter {
	return &Starter{tc: tc, queue: taskQueue(cfg)}
}

func (s *Starter) start(ctx context.Context, id string, wf any, args ...any) (string, error) {
	run, err := s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        id,
		TaskQueue: s.queue,
	}, wf, args...)
	if err != nil {
		return "", eris.Wrapf(err, "orchestrator: start %s", id)
	}
	return run.GetRunID(), nil
}

// StartDeckIngest launches the new-deck pipeline.
func (s *Starter) StartDeckIngest(ctx context.Context, dealID, deckID uuid.UUID) (string, error) {
	return s.start(ctx, fmt.Sprintf("deck-ingest-%s", deckID), DeckIngestWorkflow, dealID, deckID)
}

// StartRefreshDeal launches the user-triggered re-run.
func (s *Starter) StartRefreshDeal(ctx context.Context, dealID uuid.UUID) (string, error) {
	return s.start(ctx, fmt.Sprintf("deal-refresh-%s", dealID), RefreshDealWorkflow, dealID)
}

// StartCompanyEnrichment launches the enrichment fan-out. A non-nil dealID
// ties the run's failure reporting to that deal; uuid.Nil runs standalone.
func (s *Starter) StartCompanyEnrichment(ctx context.Context, companyID, dealID uuid.UUID) (string, error) {
	return s.start(ctx, fmt.Sprintf("company-enrich-%s", companyID), CompanyEnrichmentWorkflow, companyID, dealID)
}

// StartFounderEnrichment launches the founder chain.
func (s *Starter) StartFounderEnrichment(ctx context.Context, founderID, companyID uuid.UUID) (string, error) {
	return s.start(ctx, fmt.Sprintf("founder-enrich-%s", founderID), FounderEnrichmentWorkflow, founderID, companyID)
}

// StartPaperText launches the paper text pipeline.
func (s *Starter) StartPaperText(ctx context.Context, fileID uuid.UUID) (string, error) {
	return s.start(ctx, fmt.Sprintf("paper-text-%s", fileID), PaperTextWorkflow, fileID)
}

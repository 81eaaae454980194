// Package orchestrator sequences the ingestion and enrichment pipelines as
// Temporal workflows. Workflow arguments are entity primary keys, never
// payloads: every activity re-reads persisted state so retried and resumed
// steps observe the latest writes.
package orchestrator

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the queue every workflow and worker shares.
const TaskQueue = "dealflow"

// a resolves registered activities by method name inside workflow code.
var a *Activities

// defaultActivityOptions covers ordinary pipeline steps. Parse errors are
// surfaced as non-retryable application errors, so the attempt budget only
// spends on transient failures.
func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{errTypeParse},
		},
	}
}

// downloadActivityOptions bounds worst-case blocking on source-file fetches.
func downloadActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	}
}

// sinkActivityOptions keeps the error sink short and nearly unconditional.
func sinkActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
}

// withDealErrorSink wraps a chain body so that any failure sets the owning
// deal's processing status to FAILURE exactly once, and a cancellation to
// REVOKED. Earlier writes stay; the failure is terminal for the chain, not a
// transaction. The sink runs on a disconnected context so it still fires
// after the workflow itself was canceled.
func withDealErrorSink(ctx workflow.Context, dealID uuid.UUID, body func(workflow.Context) error) error {
	err := body(ctx)
	if err == nil {
		return nil
	}

	sink := a.MarkDealFailure
	if temporal.IsCanceledError(err) {
		sink = a.MarkDealRevoked
	}

	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, sinkActivityOptions())
	if sinkErr := workflow.ExecuteActivity(dctx, sink, dealID).Get(dctx, nil); sinkErr != nil {
		workflow.GetLogger(ctx).Error("error sink failed",
			"deal_id", dealID.String(), "error", sinkErr)
	}
	return err
}

// DeckIngestWorkflow is the new-deck pipeline: parse, identify, enrich,
// classify, assess. Later steps observe earlier steps' persisted writes.
func DeckIngestWorkflow(ctx workflow.Context, dealID, deckID uuid.UUID) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	return withDealErrorSink(ctx, dealID, func(ctx workflow.Context) error {
		if err := workflow.ExecuteActivity(ctx, a.MarkDealStarted, dealID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.ParseDeck, deckID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.ExtractBasicInfo, dealID, deckID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.RefreshDealCompany, dealID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.ExtractDealAttributes, dealID, deckID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.ExtractDualUseSignals, dealID, deckID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.AssessDeal, dealID).Get(ctx, nil); err != nil {
			return err
		}

		// CRM push is best-effort; a sync failure never fails the chain.
		if err := workflow.ExecuteActivity(ctx, a.SyncAffinity, dealID).Get(ctx, nil); err != nil {
			workflow.GetLogger(ctx).Warn("crm sync failed",
				"deal_id", dealID.String(), "error", err)
		}

		return workflow.ExecuteActivity(ctx, a.MarkDealSuccess, dealID).Get(ctx, nil)
	})
}

// RefreshDealWorkflow re-runs enrichment and assessment for an existing deal
// without re-parsing its decks.
func RefreshDealWorkflow(ctx workflow.Context, dealID uuid.UUID) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	return withDealErrorSink(ctx, dealID, func(ctx workflow.Context) error {
		if err := workflow.ExecuteActivity(ctx, a.MarkDealStarted, dealID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.RefreshDealCompany, dealID).Get(ctx, nil); err != nil {
			return err
		}
		if err := workflow.ExecuteActivity(ctx, a.AssessDeal, dealID).Get(ctx, nil); err != nil {
			return err
		}
		return workflow.ExecuteActivity(ctx, a.MarkDealSuccess, dealID).Get(ctx, nil)
	})
}

// CompanyEnrichmentWorkflow fans out the five enrichment branches in
// parallel. Branches are independent: one failure does not block the others,
// but any failure fails the workflow after all branches settle. When the
// enrichment runs on behalf of a deal, dealID routes that joined failure
// into the deal's error sink; uuid.Nil runs the fan-out standalone.
func CompanyEnrichmentWorkflow(ctx workflow.Context, companyID, dealID uuid.UUID) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	body := func(ctx workflow.Context) error {
		branches := []struct {
			name string
			fn   any
		}{
			{"firmographics", a.RefreshCompanyData},
			{"grants", a.PullGrants},
			{"patents", a.PullPatents},
			{"clinical_studies", a.PullClinicalStudies},
			{"classification", a.ClassifyCompany},
		}

		futures := make([]workflow.Future, len(branches))
		for i, b := range branches {
			futures[i] = workflow.ExecuteActivity(ctx, b.fn, companyID)
		}

		var errs []error
		for i, f := range futures {
			if err := f.Get(ctx, nil); err != nil {
				workflow.GetLogger(ctx).Error("enrichment branch failed",
					"company_id", companyID.String(),
					"branch", branches[i].name,
					"error", err)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if dealID == uuid.Nil {
		return body(ctx)
	}
	return withDealErrorSink(ctx, dealID, body)
}

// FounderEnrichmentWorkflow pulls a founder's professional profile and then
// the LLM-derived attributes; the second step's prompt uses data the first
// persisted, so the order is strict.
func FounderEnrichmentWorkflow(ctx workflow.Context, founderID, companyID uuid.UUID) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	if err := workflow.ExecuteActivity(ctx, a.RefreshFounderProfile, founderID).Get(ctx, nil); err != nil {
		return err
	}
	return workflow.ExecuteActivity(ctx, a.ExtractFounderAttributes, founderID, companyID).Get(ctx, nil)
}

// PaperTextWorkflow conditionally runs the paper steps whose preconditions
// do not already hold, and always terminates with the derived-section load.
func PaperTextWorkflow(ctx workflow.Context, fileID uuid.UUID) (PaperSections, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var state PaperState
	if err := workflow.ExecuteActivity(ctx, a.InspectPaper, fileID).Get(ctx, &state); err != nil {
		return PaperSections{}, err
	}

	if !state.HasBlob && state.HasSourceURL {
		dctx := workflow.WithActivityOptions(ctx, downloadActivityOptions())
		if err := workflow.ExecuteActivity(dctx, a.DownloadPaperSource, fileID).Get(dctx, nil); err != nil {
			return PaperSections{}, err
		}
		state.HasBlob = true
	}

	if state.HasBlob && !state.HasText {
		if err := workflow.ExecuteActivity(ctx, a.ExtractPaperText, fileID).Get(ctx, nil); err != nil {
			return PaperSections{}, err
		}
	}

	if err := workflow.ExecuteActivity(ctx, a.MatchPaperCitations, fileID).Get(ctx, nil); err != nil {
		return PaperSections{}, err
	}

	if !state.HasEmbedding {
		if err := workflow.ExecuteActivity(ctx, a.UpdatePaperEmbedding, fileID).Get(ctx, nil); err != nil {
			return PaperSections{}, err
		}
	}

	var sections PaperSections
	if err := workflow.ExecuteActivity(ctx, a.LoadPaperSections, fileID).Get(ctx, &sections); err != nil {
		return PaperSections{}, err
	}
	return sections, nil
}

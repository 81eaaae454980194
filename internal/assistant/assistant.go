// Package assistant drives the structured extraction protocol: each call
// offers the model exactly one tool, forces it, and decodes the tool-call
// arguments as the typed result. An undecodable response is terminal for the
// step, never silently partial.
package assistant

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/resilience"
	"github.com/sells-group/dealflow/pkg/anthropic"
)

// Assistant runs extraction and assessment calls against the LLM backend.
// The taxonomy is substituted into tool schemas per invocation, so a reload
// changes the enum universe without restarting anything.
type Assistant struct {
	client anthropic.Client
	tax    *model.Taxonomy
}

// New creates an Assistant.
func New(client anthropic.Client, tax *model.Taxonomy) *Assistant {
	if tax == nil {
		tax = model.DefaultTaxonomy()
	}
	return &Assistant{client: client, tax: tax}
}

// ExtractBasicInfo identifies the company behind a deck.
func (a *Assistant) ExtractBasicInfo(ctx context.Context, deckText string) (*BasicDeckInfo, error) {
	var out BasicDeckInfo
	err := a.callTool(ctx, toolCall{
		phase:     "extract_basic_info",
		model:     ModelExtract,
		maxTokens: maxTokensExtract,
		system:    extractionSystemPrompt(a.tax),
		prompt:    deckPrompt("Identify the company pitching in this deck.", deckText),
		tool:      basicInfoTool(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractDealAttributes captures the round terms described in a deck.
func (a *Assistant) ExtractDealAttributes(ctx context.Context, deckText string) (*DealAttributes, error) {
	var out DealAttributes
	err := a.callTool(ctx, toolCall{
		phase:     "extract_deal_attributes",
		model:     ModelExtract,
		maxTokens: maxTokensExtract,
		system:    extractionSystemPrompt(a.tax),
		prompt:    deckPrompt("Describe the funding round this deck is raising.", deckText),
		tool:      dealAttributesTool(a.tax),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClassifyDualUse flags defense-relevant capability signals in a deck.
func (a *Assistant) ClassifyDualUse(ctx context.Context, deckText string) (*DualUseSignals, error) {
	var out DualUseSignals
	err := a.callTool(ctx, toolCall{
		phase:     "classify_dual_use",
		model:     ModelExtract,
		maxTokens: maxTokensExtract,
		system:    extractionSystemPrompt(a.tax),
		prompt:    deckPrompt("List the dual-use signals this deck supports. Return an empty list when none apply.", deckText),
		tool:      dualUseTool(a.tax),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Signals == nil {
		out.Signals = []string{}
	}
	return &out, nil
}

// AssessDeal scores a deal given the deck and any enrichment already persisted
// on the company.
func (a *Assistant) AssessDeal(ctx context.Context, deckText, companyContext string) (*Assessment, error) {
	var out Assessment
	err := a.callTool(ctx, toolCall{
		phase:     "assess_deal",
		model:     ModelAssess,
		maxTokens: maxTokensAssess,
		system:    assessSystemPrompt(),
		prompt:    assessPrompt(deckText, companyContext),
		tool:      assessmentTool(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClassifyCompany assigns company-level taxonomy tags from its description.
func (a *Assistant) ClassifyCompany(ctx context.Context, description string) (*Classification, error) {
	var out Classification
	err := a.callTool(ctx, toolCall{
		phase:     "classify_company",
		model:     ModelExtract,
		maxTokens: maxTokensExtract,
		system:    extractionSystemPrompt(a.tax),
		prompt:    deckPrompt("Classify this company against the taxonomy.", description),
		tool:      classificationTool(a.tax),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractFounderAttributes distills a founder's professional profile into
// the attributes the founder record tracks.
func (a *Assistant) ExtractFounderAttributes(ctx context.Context, name, profileJSON string) (*FounderAttributes, error) {
	var out FounderAttributes
	err := a.callTool(ctx, toolCall{
		phase:     "extract_founder_attributes",
		model:     ModelExtract,
		maxTokens: maxTokensExtract,
		system:    extractionSystemPrompt(a.tax),
		prompt:    founderPrompt(name, profileJSON),
		tool:      founderAttributesTool(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type toolCall struct {
	phase     string
	model     string
	maxTokens int64
	system    string
	prompt    string
	tool      anthropic.Tool
}

// callTool submits one forced tool call and decodes its arguments into out.
// A response without a decodable tool call is a parse error, which the
// pipeline treats as non-retryable.
func (a *Assistant) callTool(ctx context.Context, tc toolCall, out any) error {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     tc.model,
		MaxTokens: tc.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(tc.system),
		Messages:  []anthropic.Message{{Role: "user", Content: tc.prompt}},
		Tools:     []anthropic.Tool{tc.tool},
		ForceTool: tc.tool.Name,
	})
	if err != nil {
		return eris.Wrapf(err, "assistant: %s", tc.phase)
	}
	resp.Usage.LogCost(tc.model, tc.phase)

	tu := resp.ToolUse()
	if tu == nil {
		return resilience.NewParseError(
			eris.Errorf("assistant: %s: response carries no tool call (stop reason %s)",
				tc.phase, resp.StopReason))
	}
	if tu.Name != tc.tool.Name {
		zap.L().Warn("unexpected tool name in response",
			zap.String("phase", tc.phase),
			zap.String("want", tc.tool.Name),
			zap.String("got", tu.Name))
	}
	if err := json.Unmarshal(tu.Input, out); err != nil {
		return resilience.NewParseError(
			eris.Wrapf(err, "assistant: %s: decode tool arguments", tc.phase))
	}
	return nil
}

package assistant

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/resilience"
	"github.com/sells-group/dealflow/pkg/anthropic"
)

// mockClient records requests and plays back a canned response.
type mockClient struct {
	resp *anthropic.MessageResponse
	err  error
	reqs []anthropic.MessageRequest
}

func (m *mockClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func toolUseResponse(name, input string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		StopReason: "tool_use",
		Content: []anthropic.ContentBlock{
			{Type: "tool_use", Name: name, Input: json.RawMessage(input)},
		},
	}
}

func TestExtractBasicInfo(t *testing.T) {
	mc := &mockClient{resp: toolUseResponse("record_deck_info", `{
		"company_name": "Acme Robotics",
		"website": "https://acme.dev",
		"location": "Boston, MA",
		"founders": [{"name": "Dana Reyes", "title": "CEO"}],
		"summary": "Acme builds warehouse picking robots."
	}`)}

	a := New(mc, nil)
	info, err := a.ExtractBasicInfo(context.Background(), "deck text here")
	require.NoError(t, err)

	assert.Equal(t, "Acme Robotics", info.CompanyName)
	assert.Equal(t, "https://acme.dev", info.Website)
	require.Len(t, info.Founders, 1)
	assert.Equal(t, "Dana Reyes", info.Founders[0].Name)

	// The request must offer exactly one tool and force it.
	require.Len(t, mc.reqs, 1)
	req := mc.reqs[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "record_deck_info", req.Tools[0].Name)
	assert.Equal(t, "record_deck_info", req.ForceTool)
	assert.Equal(t, ModelExtract, req.Model)
	require.NotEmpty(t, req.System)
	assert.Contains(t, req.System[0].Text, "taxonomy universe")
}

func TestExtractDealAttributes_TaxonomyEnums(t *testing.T) {
	tax := &model.Taxonomy{
		FundingStages: []string{"seed", "series a"},
		FundingTypes:  []string{"equity", "safe"},
		Industries:    []string{"Robotics"},
	}
	mc := &mockClient{resp: toolUseResponse("record_deal_attributes", `{
		"stage": "seed",
		"funding_type": "safe",
		"raise_amount_usd": 2500000,
		"industries": ["Robotics"]
	}`)}

	a := New(mc, tax)
	attrs, err := a.ExtractDealAttributes(context.Background(), "deck text")
	require.NoError(t, err)

	assert.Equal(t, "seed", attrs.Stage)
	require.NotNil(t, attrs.RaiseAmountUSD)
	assert.Equal(t, int64(2_500_000), *attrs.RaiseAmountUSD)

	// The schema's enums come from the injected taxonomy, not a default set.
	stage := mc.reqs[0].Tools[0].Properties["stage"].(map[string]any)
	assert.Equal(t, []string{"seed", "series a"}, stage["enum"])
}

func TestClassifyDualUse_EmptyListNormalized(t *testing.T) {
	mc := &mockClient{resp: toolUseResponse("record_dual_use_signals", `{"signals": null}`)}

	a := New(mc, nil)
	sig, err := a.ClassifyDualUse(context.Background(), "commercial saas deck")
	require.NoError(t, err)
	require.NotNil(t, sig.Signals)
	assert.Empty(t, sig.Signals)
}

func TestAssessDeal(t *testing.T) {
	mc := &mockClient{resp: toolUseResponse("record_assessment", `{
		"pros": ["strong team"],
		"cons": ["crowded market"],
		"quality_percentile": "top_10",
		"score": 7.5,
		"confidence": 0.8,
		"recommendation": "PURSUE"
	}`)}

	a := New(mc, nil)
	as, err := a.AssessDeal(context.Background(), "deck text", "crunchbase: 12 employees")
	require.NoError(t, err)

	assert.Equal(t, "top_10", as.QualityPercentile)
	assert.Equal(t, "PURSUE", as.Recommendation)
	require.NotNil(t, as.Score)
	assert.InDelta(t, 7.5, *as.Score, 0.001)

	req := mc.reqs[0]
	assert.Equal(t, ModelAssess, req.Model)
	assert.Contains(t, req.Messages[0].Content, "Enriched Company Data")
}

func TestExtractFounderAttributes(t *testing.T) {
	mc := &mockClient{resp: toolUseResponse("record_founder_attributes", `{
		"prior_founding_count": 2,
		"graduation_year": 2014,
		"notes": "Second-time founder with robotics background."
	}`)}

	a := New(mc, nil)
	fa, err := a.ExtractFounderAttributes(context.Background(), "Dana Reyes", `{"experience":[]}`)
	require.NoError(t, err)

	require.NotNil(t, fa.PriorFoundingCount)
	assert.Equal(t, 2, *fa.PriorFoundingCount)
	require.NotNil(t, fa.GraduationYear)
	assert.Equal(t, 2014, *fa.GraduationYear)
}

func TestCallTool_NoToolCallIsParseError(t *testing.T) {
	mc := &mockClient{resp: &anthropic.MessageResponse{
		StopReason: "end_turn",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: "I cannot help with that."}},
	}}

	a := New(mc, nil)
	_, err := a.ExtractBasicInfo(context.Background(), "deck text")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestCallTool_UndecodableArgumentsIsParseError(t *testing.T) {
	mc := &mockClient{resp: toolUseResponse("record_deck_info", `{"company_name": 42}`)}

	a := New(mc, nil)
	_, err := a.ExtractBasicInfo(context.Background(), "deck text")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
}

func TestCallTool_TransportErrorPassesThrough(t *testing.T) {
	mc := &mockClient{err: resilience.NewTransientError(assert.AnError, 529)}

	a := New(mc, nil)
	_, err := a.ExtractBasicInfo(context.Background(), "deck text")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsParse(err))
}

package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a hand-rolled Client for exercising callers.
type mockClient struct {
	resp  *MessageResponse
	err   error
	calls []MessageRequest
}

func (m *mockClient) CreateMessage(_ context.Context, req MessageRequest) (*MessageResponse, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestCreateMessage_MockClient(t *testing.T) {
	mock := &mockClient{
		resp: &MessageResponse{
			ID:         "msg_1",
			Content:    []ContentBlock{{Type: "text", Text: "hi"}},
			StopReason: "end_turn",
		},
	}

	resp, err := mock.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)
	require.Len(t, mock.calls, 1)
	assert.Equal(t, "claude-haiku-4-5-20251001", mock.calls[0].Model)
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "", Content: "defaults to user"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "plain", blocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), blocks[1].CacheControl.TTL)
}

func TestSDKTypeConversion_toSDKTools(t *testing.T) {
	tools := toSDKTools([]Tool{{
		Name:        "classify_company",
		Description: "Pick industries from the allowed list",
		Properties: map[string]any{
			"industries": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []string{"space", "robotics"}},
			},
		},
		Required: []string{"industries"},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "classify_company", tools[0].OfTool.Name)
	assert.Equal(t, []string{"industries"}, tools[0].OfTool.InputSchema.Required)
}

func TestMessageResponse_ToolUse(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "Let me extract that."},
		{Type: "tool_use", Name: "record_deck_info", Input: json.RawMessage(`{"company_name":"Acme"}`)},
	}}

	tu := resp.ToolUse()
	require.NotNil(t, tu)
	assert.Equal(t, "record_deck_info", tu.Name)

	none := &MessageResponse{Content: []ContentBlock{{Type: "text", Text: "no tools"}}}
	assert.Nil(t, none.ToolUse())
}

func TestEstimateCost_Haiku(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	u := TokenUsage{InputTokens: 2_000_000, OutputTokens: 500_000}
	cost := u.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 13.50, cost, 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	u := TokenUsage{
		InputTokens:              100_000,
		OutputTokens:             10_000,
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     2_000_000,
	}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	// in 0.08 + out 0.04 + write 1.00 + read 0.16
	assert.InDelta(t, 1.28, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000}
	assert.Zero(t, u.EstimateCost("some-other-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.LogCost("claude-haiku-4-5-20251001", "extract_basic_info")
}

package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/dealflow/internal/model"
)

// Model constants.
const (
	ModelExtract = "claude-haiku-4-5-20251001"
	ModelAssess  = "claude-sonnet-4-5-20250929"
)

// Max output tokens per extraction type. Assessments carry free-text pros and
// cons and need headroom.
const (
	maxTokensExtract = 1024
	maxTokensAssess  = 2048
)

// systemPrompt is the shared system instruction for all extraction calls.
const systemPrompt = `You are a venture capital analyst reviewing inbound deal flow. You extract structured facts from pitch decks and related documents for a deal-flow CRM.

Rules:
- Answer ONLY based on information present in the provided document text
- Respond by calling the provided tool exactly once with valid arguments
- Omit or null optional fields when the document does not state them
- Never invent values for enum-constrained fields; pick only from the listed choices
- For monetary amounts, use raw integer US dollars (e.g. 2500000, never "$2.5M")
- Be precise and factual; this data feeds investment screening`

// extractionSystemPrompt appends the taxonomy universe so repeated calls share
// a cacheable prefix.
func extractionSystemPrompt(tax *model.Taxonomy) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nCurrent taxonomy universe (the only valid enum values):\n")

	write := func(label string, values []string) {
		b, _ := json.Marshal(values)
		sb.WriteString(fmt.Sprintf("- %s: %s\n", label, string(b)))
	}
	write("industries", tax.Industries)
	write("funding stages", tax.FundingStages)
	write("funding types", tax.FundingTypes)
	write("technology types", tax.TechnologyTypes)
	write("dual-use signals", tax.DualUseSignals)

	return sb.String()
}

// assessSystemPrompt frames the scoring call.
func assessSystemPrompt() string {
	return systemPrompt + `

You are performing an investment assessment. Weigh the team, market, technology, traction, and raise terms against a typical early-stage venture bar. Distinguish facts stated in the documents from your analytical conclusions, and reflect uncertainty in the confidence value.`
}

// deckPrompt renders the user message for a deck-text extraction.
func deckPrompt(task, deckText string) string {
	return fmt.Sprintf("%s\n\n--- Deck Text ---\n%s", task, deckText)
}

// assessPrompt renders the user message for a deal assessment, combining the
// deck with whatever enrichment has already landed on the company.
func assessPrompt(deckText, companyContext string) string {
	var sb strings.Builder
	sb.WriteString("Assess this deal for investment.\n\n--- Deck Text ---\n")
	sb.WriteString(deckText)
	if companyContext != "" {
		sb.WriteString("\n\n--- Enriched Company Data ---\n")
		sb.WriteString(companyContext)
	}
	return sb.String()
}

// founderPrompt renders the user message for founder profile analysis.
func founderPrompt(name, profileJSON string) string {
	return fmt.Sprintf(`Analyze the professional history of founder %q.

--- Profile (JSON) ---
%s`, name, profileJSON)
}

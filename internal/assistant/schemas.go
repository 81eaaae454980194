package assistant

import (
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/anthropic"
)

// Quality percentile and recommendation universes are fixed, not tenant
// taxonomy; they shape the assessment record directly.
var (
	qualityPercentiles = []string{"top_1", "top_5", "top_10", "top_25", "top_50", "bottom_50"}
	recommendations    = []string{"PURSUE", "MONITOR", "PASS"}
)

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func numberProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func enumProp(desc string, values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

func stringArrayProp(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}

func enumArrayProp(desc string, values []string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string", "enum": values},
		"description": desc,
	}
}

// basicInfoTool identifies the company behind a deck.
func basicInfoTool() anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_deck_info",
		Description: "Record the identifying facts of the company pitching in this deck.",
		Properties: map[string]any{
			"company_name": stringProp("Legal or brand name of the company"),
			"website":      stringProp("Company website URL, if stated"),
			"location":     stringProp("Headquarters city/region, if stated"),
			"founders": map[string]any{
				"type":        "array",
				"description": "Founders named in the deck",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":  stringProp("Founder full name"),
						"title": stringProp("Role, e.g. CEO or CTO"),
					},
					"required": []string{"name"},
				},
			},
			"summary": stringProp("Two-to-three sentence summary of what the company does"),
		},
		Required: []string{"company_name", "summary"},
	}
}

// dealAttributesTool captures the round terms, enum-bound to the tenant's
// taxonomy.
func dealAttributesTool(tax *model.Taxonomy) anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_deal_attributes",
		Description: "Record the funding round described in this deck.",
		Properties: map[string]any{
			"stage":            enumProp("Funding stage being raised", tax.FundingStages),
			"funding_type":     enumProp("Instrument of the raise", tax.FundingTypes),
			"raise_amount_usd": intProp("Amount being raised in whole US dollars"),
			"industries":       enumArrayProp("Industries this deal belongs to", tax.Industries),
		},
		Required: []string{"stage"},
	}
}

// dualUseTool classifies defense-relevant signals. The empty array is the
// expected answer for most decks, and the description says so.
func dualUseTool(tax *model.Taxonomy) anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_dual_use_signals",
		Description: "Record dual-use (defense-relevant) capability signals present in this deck. Most commercial decks have none; an empty list is the normal answer.",
		Properties: map[string]any{
			"signals": enumArrayProp("Dual-use signals explicitly supported by the deck", tax.DualUseSignals),
		},
		Required: []string{"signals"},
	}
}

// assessmentTool scores the deal.
func assessmentTool() anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_assessment",
		Description: "Record an investment assessment of this deal.",
		Properties: map[string]any{
			"pros":               stringArrayProp("Strongest points in favor of the deal"),
			"cons":               stringArrayProp("Biggest concerns or risks"),
			"quality_percentile": enumProp("Where this deal sits among comparable inbound deals", qualityPercentiles),
			"score":              numberProp("Overall score from 0.0 (worst) to 10.0 (best)"),
			"confidence":         numberProp("Confidence in this assessment, 0.0 to 1.0"),
			"recommendation":     enumProp("Next action for the investment team", recommendations),
		},
		Required: []string{"pros", "cons", "quality_percentile", "recommendation"},
	}
}

// classificationTool assigns company-level taxonomy tags.
func classificationTool(tax *model.Taxonomy) anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_classification",
		Description: "Classify this company against the taxonomy.",
		Properties: map[string]any{
			"industries":       enumArrayProp("Industries the company operates in", tax.Industries),
			"technology_types": enumArrayProp("Technology types the company builds", tax.TechnologyTypes),
		},
		Required: []string{"industries"},
	}
}

// founderAttributesTool distills a founder's professional profile.
func founderAttributesTool() anthropic.Tool {
	return anthropic.Tool{
		Name:        "record_founder_attributes",
		Description: "Record facts derived from a founder's professional history.",
		Properties: map[string]any{
			"prior_founding_count": intProp("Number of companies founded before this one"),
			"graduation_year":      intProp("Year of first undergraduate degree, if determinable"),
			"notes":                stringProp("One-paragraph summary of the founder's relevant background"),
		},
		Required: []string{"notes"},
	}
}

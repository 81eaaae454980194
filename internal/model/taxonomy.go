package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Taxonomy holds the tenant's current choice universes. The assistant
// substitutes these into tool schemas at call time, so the enum values can
// differ per tenant and per invocation.
type Taxonomy struct {
	Industries      []string `yaml:"industries"`
	FundingStages   []string `yaml:"funding_stages"`
	FundingTypes    []string `yaml:"funding_types"`
	IPOStatuses     []string `yaml:"ipo_statuses"`
	TechnologyTypes []string `yaml:"technology_types"`
	InvestorTypes   []string `yaml:"investor_types"`
	DualUseSignals  []string `yaml:"dual_use_signals"`
}

// LoadTaxonomy reads a taxonomy seed file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "taxonomy: parse %s", path)
	}
	return &t, nil
}

// DefaultTaxonomy returns the built-in choice universe used when no seed
// file is configured.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Industries: []string{
			"Aerospace", "AI/ML", "Biotech", "Climate", "Cybersecurity",
			"Defense", "Energy", "Fintech", "Healthcare", "Manufacturing",
			"Robotics", "Semiconductors", "Space", "Quantum",
		},
		FundingStages: []string{
			"pre-seed", "seed", "series a", "series b", "series c", "growth",
		},
		FundingTypes: []string{
			"equity", "safe", "convertible note", "grant", "debt",
		},
		IPOStatuses: []string{"private", "public", "delisted"},
		TechnologyTypes: []string{
			"hardware", "software", "biological", "materials", "sensors",
			"autonomy", "communications",
		},
		InvestorTypes: []string{"vc", "angel", "corporate", "government"},
		DualUseSignals: []string{
			"ISR", "autonomy", "communications", "cyber", "energy resilience",
			"logistics", "materials", "medical readiness", "PNT", "space",
		},
	}
}

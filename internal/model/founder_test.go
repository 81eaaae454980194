package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateAgeAtFounding(t *testing.T) {
	grad := func(y int) *int { return &y }

	tests := []struct {
		name       string
		graduation *int
		founded    *int
		want       *int
	}{
		{"both known", grad(2015), grad(2020), grad(27)},
		{"founded same year", grad(2020), grad(2020), grad(22)},
		{"founded before graduation", grad(2020), grad(2017), grad(19)},
		{"missing graduation", nil, grad(2020), nil},
		{"missing founded", grad(2015), nil, nil},
		{"implausibly early founding", grad(2020), grad(1990), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateAgeAtFounding(tt.graduation, tt.founded)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestDefaultTaxonomy_NonEmpty(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.NotEmpty(t, tax.Industries)
	assert.NotEmpty(t, tax.FundingStages)
	assert.NotEmpty(t, tax.DualUseSignals)
	assert.Contains(t, tax.FundingStages, "seed")
}

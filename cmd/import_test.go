package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyRow_MapsColumns(t *testing.T) {
	header := map[string]int{
		"name": 0, "website": 1, "city": 2, "founded_year": 3,
		"industries": 4, "funding_total_usd": 5,
	}
	row := []string{"Acme Robotics", "https://acme.example", "Boston", "2019", "robotics; defense", "2500000"}

	seed, candidates := companyRow(header, row)

	assert.Equal(t, "Acme Robotics", seed.Name)
	assert.Equal(t, "https://acme.example", seed.Website)

	assert.Equal(t, "Boston", candidates["city"])
	assert.Equal(t, []string{"robotics", "defense"}, candidates["industries"])

	year, ok := candidates["founded_year"].(*int)
	require.True(t, ok)
	assert.Equal(t, 2019, *year)

	usd, ok := candidates["funding_total_usd"].(*int64)
	require.True(t, ok)
	assert.Equal(t, int64(2_500_000), *usd)
}

func TestCompanyRow_ShortRowAndBadNumbers(t *testing.T) {
	header := map[string]int{"name": 0, "website": 1, "founded_year": 2}

	seed, candidates := companyRow(header, []string{"Acme"})
	assert.Equal(t, "Acme", seed.Name)
	assert.Empty(t, seed.Website)
	assert.Empty(t, candidates)

	_, candidates = companyRow(header, []string{"Acme", "", "circa 2019"})
	assert.NotContains(t, candidates, "founded_year")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a; b"))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Empty(t, splitList(" ; "))
}

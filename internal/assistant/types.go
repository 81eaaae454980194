package assistant

// FounderRef is a founder mention extracted from a deck.
type FounderRef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// BasicDeckInfo is the first-pass extraction from raw deck text: just enough
// to identify the company and seed the deal record.
type BasicDeckInfo struct {
	CompanyName string       `json:"company_name"`
	Website     string       `json:"website"`
	Location    string       `json:"location"`
	Founders    []FounderRef `json:"founders"`
	Summary     string       `json:"summary"`
}

// DealAttributes describes the round being raised. Stage and FundingType are
// constrained to the tenant's taxonomy at call time.
type DealAttributes struct {
	Stage          string   `json:"stage"`
	FundingType    string   `json:"funding_type"`
	RaiseAmountUSD *int64   `json:"raise_amount_usd"`
	Industries     []string `json:"industries"`
}

// DualUseSignals lists defense-relevant capability signals found in a deck.
// Most commercial decks carry none.
type DualUseSignals struct {
	Signals []string `json:"signals"`
}

// Assessment is the automated investment scoring for a deal. Values land in
// the assessment record's auto_* columns.
type Assessment struct {
	Pros              []string `json:"pros"`
	Cons              []string `json:"cons"`
	QualityPercentile string   `json:"quality_percentile"`
	Score             *float64 `json:"score"`
	Confidence        *float64 `json:"confidence"`
	Recommendation    string   `json:"recommendation"`
}

// Classification is the company-level taxonomy assignment.
type Classification struct {
	Industries      []string `json:"industries"`
	TechnologyTypes []string `json:"technology_types"`
}

// FounderAttributes is derived from a founder's professional profile.
type FounderAttributes struct {
	PriorFoundingCount *int   `json:"prior_founding_count"`
	GraduationYear     *int   `json:"graduation_year"`
	Notes              string `json:"notes"`
}

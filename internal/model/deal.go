package model

import (
	"time"

	"github.com/google/uuid"
)

// DealStatus is the business lifecycle of a deal, independent of the
// ingestion pipeline's ProcessingStatus.
type DealStatus string

const (
	DealNew      DealStatus = "NEW"
	DealActive   DealStatus = "ACTIVE"
	DealPassed   DealStatus = "PASSED"
	DealInvested DealStatus = "INVESTED"
	DealArchived DealStatus = "ARCHIVED"
)

// Deal represents a funding opportunity. A non-draft deal always references
// a company; the store enforces this with a check constraint.
type Deal struct {
	ID        uuid.UUID
	CompanyID *uuid.UUID
	Draft     bool

	Name             string
	Status           DealStatus
	ProcessingStatus ProcessingStatus

	Stage          string `merge:"stage"`
	FundingType    string `merge:"funding_type"`
	RaiseAmountUSD *int64 `merge:"raise_amount_usd"`
	Summary        string `merge:"summary"`

	Industries     []string
	DualUseSignals []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assessment is a point-in-time scoring record for a deal. The auto_* columns
// are written by the LLM pipeline; the unprefixed columns are human-edited.
// The two namespaces never collide.
type Assessment struct {
	ID     uuid.UUID
	DealID uuid.UUID

	AutoPros              []string
	AutoCons              []string
	AutoQualityPercentile string
	AutoScore             *float64
	AutoConfidence        *float64
	AutoRecommendation    string

	Pros              []string
	Cons              []string
	QualityPercentile string
	Score             *float64
	Confidence        *float64
	Recommendation    string

	CreatedAt time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Company is the firmographic record every enrichment writer converges on.
// Fields carrying a merge tag participate in the field-merge policy; the tag
// value is the persistence column scoped by partial updates.
type Company struct {
	ID uuid.UUID

	Name        string `merge:"name"`
	LegalName   string `merge:"legal_name"`
	Website     string `merge:"website"`
	Domain      string `merge:"domain"`
	Description string `merge:"description"`

	City    string `merge:"city"`
	State   string `merge:"state"`
	Country string `merge:"country"`

	FoundedYear      *int   `merge:"founded_year"`
	FundingTotalUSD  *int64 `merge:"funding_total_usd"`
	LastFundingStage string `merge:"last_funding_stage"`
	IPOStatus        string `merge:"ipo_status"`

	EmployeeCountMin *int   `merge:"employee_count_min"`
	EmployeeCountMax *int   `merge:"employee_count_max"`
	RevenueUSDMin    *int64 `merge:"revenue_usd_min"`
	RevenueUSDMax    *int64 `merge:"revenue_usd_max"`

	WomenFounded    *bool `merge:"women_founded"`
	MinorityFounded *bool `merge:"minority_founded"`

	Industries      []string `merge:"industries"`
	TechnologyTypes []string `merge:"technology_types"`

	// CrunchbaseID is the external firmographic identifier, also usable as
	// a lookup key during company resolution.
	CrunchbaseID string `merge:"crunchbase_id"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grant is an enrichment-sourced award record. The full set for a company is
// replaced on every successful pull.
type Grant struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Agency    string
	Program   string
	Title     string
	Phase     string
	AmountUSD int64
	AwardYear int
}

// PatentApplication is an enrichment-sourced patent filing record, replaced
// as a set on every successful pull.
type PatentApplication struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	ApplicationNumber string
	Title             string
	Status            string
	FiledAt           *time.Time
}

// ClinicalStudy is an enrichment-sourced trial record, replaced as a set on
// every successful pull.
type ClinicalStudy struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	NCTID      string
	Title      string
	Phase      string
	Status     string
	Conditions []string
	StartedAt  *time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Founder is a person profile enriched from professional-history sources.
type Founder struct {
	ID uuid.UUID

	Name         string `merge:"name"`
	Headline     string `merge:"headline"`
	Location     string `merge:"location"`
	LinkedInURL  string `merge:"linkedin_url"`
	CoresignalID string `merge:"coresignal_id"`

	// Raw history payloads from the profile source, kept as JSON for the
	// founder-attribute prompt.
	ExperienceJSON string `merge:"experience_json"`
	EducationJSON  string `merge:"education_json"`

	GraduationYear *int `merge:"graduation_year"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Founding joins a founder to a company with per-company attributes.
type Founding struct {
	ID        uuid.UUID
	FounderID uuid.UUID
	CompanyID uuid.UUID

	Title              string
	PriorFoundingCount *int
	EstAgeAtFounding   *int

	CreatedAt time.Time
}

// typical age at undergraduate graduation, used to anchor the estimate
const graduationAge = 22

// EstimateAgeAtFounding derives a founder's approximate age when the company
// was founded. Both years must be known and ordered sensibly, otherwise nil.
func EstimateAgeAtFounding(graduationYear, foundedYear *int) *int {
	if graduationYear == nil || foundedYear == nil {
		return nil
	}
	if *graduationYear <= 0 || *foundedYear < *graduationYear-graduationAge {
		return nil
	}
	age := graduationAge + (*foundedYear - *graduationYear)
	if age <= 0 || age > 100 {
		return nil
	}
	return &age
}

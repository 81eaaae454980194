package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/clinicaltrials"
	"github.com/sells-group/dealflow/pkg/sbir"
	"github.com/sells-group/dealflow/pkg/uspto"
)

type fakeSBIR struct{ awards []sbir.Award }

func (f *fakeSBIR) AwardsByFirm(context.Context, string) ([]sbir.Award, error) {
	return f.awards, nil
}

type fakeUSPTO struct{ apps []uspto.Application }

func (f *fakeUSPTO) ApplicationsByApplicant(context.Context, string) ([]uspto.Application, error) {
	return f.apps, nil
}

type fakeTrials struct{ studies []clinicaltrials.Study }

func (f *fakeTrials) StudiesBySponsor(context.Context, string) ([]clinicaltrials.Study, error) {
	return f.studies, nil
}

// fakeChildStore records replace-all writes.
type fakeChildStore struct {
	company *model.Company
	grants  []model.Grant
	patents []model.PatentApplication
	studies []model.ClinicalStudy
	calls   int
}

func (f *fakeChildStore) GetCompany(context.Context, uuid.UUID) (*model.Company, error) {
	c := *f.company
	return &c, nil
}

func (f *fakeChildStore) ReplaceGrants(_ context.Context, _ uuid.UUID, grants []model.Grant) error {
	f.grants = grants
	f.calls++
	return nil
}

func (f *fakeChildStore) ReplacePatentApplications(_ context.Context, _ uuid.UUID, apps []model.PatentApplication) error {
	f.patents = apps
	f.calls++
	return nil
}

func (f *fakeChildStore) ReplaceClinicalStudies(_ context.Context, _ uuid.UUID, studies []model.ClinicalStudy) error {
	f.studies = studies
	f.calls++
	return nil
}

func TestGrantsPuller_ReplacesSet(t *testing.T) {
	store := &fakeChildStore{company: &model.Company{ID: uuid.New(), Name: "Acme Robotics"}}
	conn := NewGrants(&fakeSBIR{awards: []sbir.Award{
		{Firm: "Acme Robotics", AwardTitle: "Autonomous Picking", Agency: "DOD", Program: "SBIR", Phase: "Phase II", AwardAmount: "1499999.50", AwardYear: 2023},
	}})

	p := NewGrantsPuller(conn, store)
	require.NoError(t, p.Pull(context.Background(), store.company.ID))

	require.Len(t, store.grants, 1)
	g := store.grants[0]
	assert.Equal(t, "Autonomous Picking", g.Title)
	assert.Equal(t, int64(1_499_999), g.AmountUSD)
	assert.Equal(t, 2023, g.AwardYear)
	assert.Equal(t, store.company.ID, g.CompanyID)
	assert.NotEqual(t, uuid.Nil, g.ID)
}

func TestGrantsPuller_EmptyPullWritesEmptySet(t *testing.T) {
	store := &fakeChildStore{company: &model.Company{ID: uuid.New(), Name: "Acme"}}

	p := NewGrantsPuller(NewGrants(&fakeSBIR{}), store)
	require.NoError(t, p.Pull(context.Background(), store.company.ID))

	assert.Equal(t, 1, store.calls)
	assert.Empty(t, store.grants)
}

func TestPatentsPuller_ParsesFilingDate(t *testing.T) {
	store := &fakeChildStore{company: &model.Company{ID: uuid.New(), Name: "Acme"}}
	conn := NewPatents(&fakeUSPTO{apps: []uspto.Application{
		{ApplicationNumber: "17123456", Title: "Gripper Assembly", Status: "Pending", FilingDate: "2023-06-15"},
		{ApplicationNumber: "17123457", Title: "Vision System", Status: "Pending", FilingDate: "not-a-date"},
	}})

	p := NewPatentsPuller(conn, store)
	require.NoError(t, p.Pull(context.Background(), store.company.ID))

	require.Len(t, store.patents, 2)
	require.NotNil(t, store.patents[0].FiledAt)
	assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), *store.patents[0].FiledAt)
	assert.Nil(t, store.patents[1].FiledAt)
}

func TestClinicalPuller_JoinsPhases(t *testing.T) {
	store := &fakeChildStore{company: &model.Company{ID: uuid.New(), Name: "Acme Bio"}}
	conn := NewClinical(&fakeTrials{studies: []clinicaltrials.Study{
		{
			NCTID:      "NCT01234567",
			Title:      "Device Safety Study",
			Phases:     []string{"PHASE1", "PHASE2"},
			Status:     "RECRUITING",
			Conditions: []string{"Condition A"},
			StartDate:  "2024-03",
		},
	}})

	p := NewClinicalPuller(conn, store)
	require.NoError(t, p.Pull(context.Background(), store.company.ID))

	require.Len(t, store.studies, 1)
	s := store.studies[0]
	assert.Equal(t, "PHASE1, PHASE2", s.Phase)
	assert.Equal(t, []string{"Condition A"}, s.Conditions)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, 2024, s.StartedAt.Year())
	assert.Equal(t, time.March, s.StartedAt.Month())
}

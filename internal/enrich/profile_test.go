package enrich

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/coresignal"
)

type fakeCoresignal struct{ member *coresignal.Member }

func (f *fakeCoresignal) CollectMember(context.Context, string) (*coresignal.Member, error) {
	return f.member, nil
}

type fakeFounderStore struct {
	founder *model.Founder
	updated map[string]any
}

func (f *fakeFounderStore) GetFounder(context.Context, uuid.UUID) (*model.Founder, error) {
	fo := *f.founder
	return &fo, nil
}

func (f *fakeFounderStore) UpdateFounderFields(_ context.Context, _ uuid.UUID, fields map[string]any) error {
	f.updated = fields
	return nil
}

func TestFounderProfiler_MergesProfile(t *testing.T) {
	cs := &fakeCoresignal{member: &coresignal.Member{
		ID:       99001,
		Name:     "Dana Reyes",
		Headline: "CEO at Acme Robotics",
		Location: "Boston, Massachusetts",
		URL:      "https://linkedin.com/in/danareyes",
		Experience: []coresignal.Experience{
			{Title: "CEO", CompanyName: "Acme Robotics", DateFrom: "2021-01"},
		},
		Education: []coresignal.Education{
			{Institution: "MIT", Degree: "PhD", DateTo: "2019-06"},
			{Institution: "MIT", Degree: "BS", DateTo: "2014-06"},
		},
	}}
	store := &fakeFounderStore{founder: &model.Founder{
		ID:          uuid.New(),
		Name:        "Dana Reyes",
		LinkedInURL: "https://linkedin.com/in/danareyes",
	}}

	r := NewFounderProfiler(NewProfile(cs), store)
	require.NoError(t, r.Refresh(context.Background(), store.founder.ID))

	require.NotNil(t, store.updated)
	assert.Equal(t, "CEO at Acme Robotics", store.updated["headline"])
	assert.Equal(t, "99001", store.updated["coresignal_id"])
	assert.Contains(t, store.updated["experience_json"], "Acme Robotics")

	// Earliest education end year wins.
	require.Contains(t, store.updated, "graduation_year")
	assert.Equal(t, 2014, *store.updated["graduation_year"].(*int))
}

func TestFounderProfiler_NoProfileKeySkips(t *testing.T) {
	store := &fakeFounderStore{founder: &model.Founder{ID: uuid.New(), Name: "No URL"}}

	r := NewFounderProfiler(NewProfile(&fakeCoresignal{}), store)
	require.NoError(t, r.Refresh(context.Background(), store.founder.ID))
	assert.Nil(t, store.updated)
}

func TestFounderProfiler_NoMatchLeavesRecordUntouched(t *testing.T) {
	store := &fakeFounderStore{founder: &model.Founder{
		ID:          uuid.New(),
		Name:        "Ghost",
		LinkedInURL: "https://linkedin.com/in/ghost",
	}}

	r := NewFounderProfiler(NewProfile(&fakeCoresignal{member: nil}), store)
	require.NoError(t, r.Refresh(context.Background(), store.founder.ID))
	assert.Nil(t, store.updated)
}

func TestGraduationYear(t *testing.T) {
	assert.Nil(t, graduationYear(nil))
	assert.Nil(t, graduationYear([]coresignal.Education{{DateTo: ""}}))

	y := graduationYear([]coresignal.Education{
		{DateTo: "2021"},
		{DateTo: "2017-05"},
	})
	require.NotNil(t, y)
	assert.Equal(t, 2017, *y)
}

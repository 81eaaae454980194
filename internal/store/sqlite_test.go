package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func intPtr(v int) *int { return &v }

// --- Companies ---

func TestSQLite_Company_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{
		Name:        "Acme Robotics",
		Website:     "https://acme.example",
		FoundedYear: intPtr(2019),
		Industries:  []string{"robotics", "defense"},
	}
	require.NoError(t, st.CreateCompany(ctx, c))
	require.NotEqual(t, uuid.Nil, c.ID)

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Robotics", got.Name)
	assert.Equal(t, "https://acme.example", got.Website)
	require.NotNil(t, got.FoundedYear)
	assert.Equal(t, 2019, *got.FoundedYear)
	assert.Equal(t, []string{"robotics", "defense"}, got.Industries)
	assert.Nil(t, got.EmployeeCountMin)
}

func TestSQLite_Company_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCompany(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_FindCompanies_ORKeys(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := &model.Company{Name: "Acme", Website: "https://acme.example"}
	b := &model.Company{Name: "Beta Labs", CrunchbaseID: "cb-beta"}
	require.NoError(t, st.CreateCompany(ctx, a))
	require.NoError(t, st.CreateCompany(ctx, b))

	// Website match, case-insensitive.
	found, err := st.FindCompanies(ctx, CompanyLookup{Website: "HTTPS://ACME.EXAMPLE"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	// Either key matching returns both rows.
	found, err = st.FindCompanies(ctx, CompanyLookup{Name: "acme", CrunchbaseID: "cb-beta"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	// Empty lookup matches nothing.
	found, err = st.FindCompanies(ctx, CompanyLookup{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLite_FindCompanies_NameKeyVariants(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Café Robotics"}
	require.NoError(t, st.CreateCompany(ctx, c))

	// Diacritic, case, and whitespace variants all hit the same key.
	for _, name := range []string{"Cafe Robotics", "café robotics", " Cafe   ROBOTICS "} {
		found, err := st.FindCompanies(ctx, CompanyLookup{Name: name})
		require.NoError(t, err)
		require.Len(t, found, 1, "lookup %q", name)
		assert.Equal(t, c.ID, found[0].ID)
	}

	// Renaming moves the key with the name.
	require.NoError(t, st.UpdateCompanyFields(ctx, c.ID, map[string]any{"name": "Daßler Motors"}))

	found, err := st.FindCompanies(ctx, CompanyLookup{Name: "cafe robotics"})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = st.FindCompanies(ctx, CompanyLookup{Name: "dassler motors"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ID)
}

func TestSQLite_UpdateCompanyFields_Partial(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme", Description: "old"}
	require.NoError(t, st.CreateCompany(ctx, c))

	err := st.UpdateCompanyFields(ctx, c.ID, map[string]any{
		"description":  "Builds autonomous robots",
		"founded_year": 2020,
		"industries":   []string{"robotics"},
	})
	require.NoError(t, err)

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "Builds autonomous robots", got.Description)
	require.NotNil(t, got.FoundedYear)
	assert.Equal(t, 2020, *got.FoundedYear)
	assert.Equal(t, []string{"robotics"}, got.Industries)
}

func TestSQLite_UpdateCompanyFields_RejectsUnknownColumn(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateCompanyFields(context.Background(), uuid.New(), map[string]any{
		"id": uuid.New().String(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not updatable")
}

func TestSQLite_UpdateCompanyFields_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateCompanyFields(context.Background(), uuid.New(), map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Deals ---

func TestSQLite_Deal_DraftWithoutCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "Inbound deck", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Draft)
	assert.Nil(t, got.CompanyID)
	assert.Equal(t, model.DealNew, got.Status)
	assert.Equal(t, model.StatusPending, got.ProcessingStatus)
}

func TestSQLite_Deal_NonDraftRequiresCompany(t *testing.T) {
	st := newTestSQLiteStore(t)

	d := &model.Deal{Name: "bad", Draft: false}
	err := st.CreateDeal(context.Background(), d)
	require.Error(t, err)
}

func TestSQLite_LinkDealCompany_ClearsDraft(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, c))
	d := &model.Deal{Name: "Acme seed", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	require.NoError(t, st.LinkDealCompany(ctx, d.ID, c.ID))

	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.Draft)
	require.NotNil(t, got.CompanyID)
	assert.Equal(t, c.ID, *got.CompanyID)
}

func TestSQLite_SetDealProcessingStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	require.NoError(t, st.SetDealProcessingStatus(ctx, d.ID, model.StatusStarted))
	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStarted, got.ProcessingStatus)

	assert.ErrorIs(t, st.SetDealProcessingStatus(ctx, uuid.New(), model.StatusFailure), ErrNotFound)
}

func TestSQLite_SetDealTags(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	require.NoError(t, st.SetDealTags(ctx, d.ID, []string{"space"}, []string{"ISR"}))
	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"space"}, got.Industries)
	assert.Equal(t, []string{"ISR"}, got.DualUseSignals)
}

func TestSQLite_ListDeals_Filtered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := &model.Deal{Name: "deal", Draft: true}
		require.NoError(t, st.CreateDeal(ctx, d))
		if i == 0 {
			require.NoError(t, st.SetDealProcessingStatus(ctx, d.ID, model.StatusSuccess))
		}
	}

	all, err := st.ListDeals(ctx, DealFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	done, err := st.ListDeals(ctx, DealFilter{ProcessingStatus: model.StatusSuccess})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	limited, err := st.ListDeals(ctx, DealFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_UpdateDealFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	err := st.UpdateDealFields(ctx, d.ID, map[string]any{
		"stage":            "seed",
		"raise_amount_usd": int64(2_500_000),
	})
	require.NoError(t, err)

	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "seed", got.Stage)
	require.NotNil(t, got.RaiseAmountUSD)
	assert.Equal(t, int64(2_500_000), *got.RaiseAmountUSD)
}

// --- Assessments ---

func TestSQLite_Assessment_CreateAndLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	first := &model.Assessment{
		DealID:             d.ID,
		AutoPros:           []string{"strong team"},
		AutoRecommendation: "pass",
	}
	require.NoError(t, st.CreateAssessment(ctx, first))
	time.Sleep(5 * time.Millisecond)
	score := 0.82
	second := &model.Assessment{
		DealID:             d.ID,
		AutoPros:           []string{"strong team", "fast traction"},
		AutoScore:          &score,
		AutoRecommendation: "advance",
	}
	require.NoError(t, st.CreateAssessment(ctx, second))

	latest, err := st.LatestAssessment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "advance", latest.AutoRecommendation)
	require.NotNil(t, latest.AutoScore)
	assert.InDelta(t, 0.82, *latest.AutoScore, 1e-9)
	// Human namespace untouched.
	assert.Empty(t, latest.Pros)
	assert.Empty(t, latest.Recommendation)

	_, err = st.LatestAssessment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Files ---

func TestSQLite_File_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))

	f := &model.File{
		DealID:   d.ID,
		Kind:     model.KindDeck,
		Name:     "deck.pdf",
		MimeType: "application/pdf",
	}
	require.NoError(t, st.CreateFile(ctx, f))
	assert.Equal(t, model.StatusPending, f.ProcessingStatus)

	require.NoError(t, st.SetFileBlobPath(ctx, f.ID, "deal/"+d.ID.String()+"/file/deck.pdf"))
	require.NoError(t, st.SetFileProcessingStatus(ctx, f.ID, model.StatusStarted))
	require.NoError(t, st.SetFileText(ctx, f.ID, "raw\ftext", "raw text"))
	require.NoError(t, st.SetFileProcessingStatus(ctx, f.ID, model.StatusSuccess))

	got, err := st.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.ProcessingStatus)
	assert.Equal(t, "raw\ftext", got.RawText)
	assert.Equal(t, "raw text", got.CleanText)
	assert.Contains(t, got.BlobPath, "deck.pdf")
	assert.Nil(t, got.Paper)

	files, err := st.ListDealFiles(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, f.ID, files[0].ID)
}

func TestSQLite_PaperMetaAndEmbedding(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))
	f := &model.File{DealID: d.ID, Kind: model.KindPaper, Name: "paper.pdf"}
	require.NoError(t, st.CreateFile(ctx, f))

	meta := &model.PaperMeta{
		Title:         "Autonomy Under Contested Spectrum",
		Authors:       []string{"J. Doe"},
		CitationCount: intPtr(42),
		DOI:           "10.1000/demo",
	}
	require.NoError(t, st.SetPaperMeta(ctx, f.ID, meta))
	require.NoError(t, st.SetPaperEmbedding(ctx, f.ID, []float32{0.1, 0.2}))

	got, err := st.GetFile(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Paper)
	assert.Equal(t, "Autonomy Under Contested Spectrum", got.Paper.Title)
	require.NotNil(t, got.Paper.CitationCount)
	assert.Equal(t, 42, *got.Paper.CitationCount)
	assert.Equal(t, []float32{0.1, 0.2}, got.Paper.Embedding)
}

func TestSQLite_ReplaceDeckPages(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := &model.Deal{Name: "x", Draft: true}
	require.NoError(t, st.CreateDeal(ctx, d))
	f := &model.File{DealID: d.ID, Kind: model.KindDeck, Name: "deck.pdf"}
	require.NoError(t, st.CreateFile(ctx, f))

	require.NoError(t, st.ReplaceDeckPages(ctx, f.ID, []model.DeckPage{
		{Number: 1, Text: "intro"},
		{Number: 2, Text: "market"},
	}))
	// A re-parse replaces the whole set.
	require.NoError(t, st.ReplaceDeckPages(ctx, f.ID, []model.DeckPage{
		{Number: 1, Text: "intro v2"},
		{Number: 2, Text: "market v2"},
		{Number: 3, Text: "team"},
	}))

	pages, err := st.ListDeckPages(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "intro v2", pages[0].Text)
	assert.Equal(t, 3, pages[2].Number)
}

// --- Founders ---

func TestSQLite_Founder_CreateUpdateAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, c))

	f := &model.Founder{Name: "Jordan Vale", LinkedInURL: "https://linkedin.com/in/jvale"}
	require.NoError(t, st.CreateFounder(ctx, f))

	require.NoError(t, st.UpdateFounderFields(ctx, f.ID, map[string]any{
		"headline":        "CEO at Acme",
		"graduation_year": 2015,
	}))

	got, err := st.GetFounder(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "CEO at Acme", got.Headline)
	require.NotNil(t, got.GraduationYear)
	assert.Equal(t, 2015, *got.GraduationYear)

	require.NoError(t, st.UpsertFounding(ctx, &model.Founding{
		FounderID: f.ID, CompanyID: c.ID, Title: "CEO",
	}))
	// A later upsert fills missing attributes but never blanks what the
	// deck already established.
	require.NoError(t, st.UpsertFounding(ctx, &model.Founding{
		FounderID: f.ID, CompanyID: c.ID,
		PriorFoundingCount: intPtr(1), EstAgeAtFounding: intPtr(26),
	}))

	founding, err := st.GetFounding(ctx, f.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CEO", founding.Title)
	require.NotNil(t, founding.PriorFoundingCount)
	assert.Equal(t, 1, *founding.PriorFoundingCount)
	require.NotNil(t, founding.EstAgeAtFounding)
	assert.Equal(t, 26, *founding.EstAgeAtFounding)

	founders, err := st.ListCompanyFounders(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, founders, 1)
	assert.Equal(t, f.ID, founders[0].ID)
}

// --- Enrichment children ---

func TestSQLite_ReplaceGrants(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, c))

	require.NoError(t, st.ReplaceGrants(ctx, c.ID, []model.Grant{
		{Agency: "DOD", Program: "SBIR", Title: "Phase I radar", Phase: "I", AmountUSD: 150_000, AwardYear: 2022},
	}))
	require.NoError(t, st.ReplaceGrants(ctx, c.ID, []model.Grant{
		{Agency: "DOD", Program: "SBIR", Title: "Phase I radar", Phase: "I", AmountUSD: 150_000, AwardYear: 2022},
		{Agency: "DOD", Program: "SBIR", Title: "Phase II radar", Phase: "II", AmountUSD: 1_000_000, AwardYear: 2023},
	}))

	grants, err := st.ListGrants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "Phase II radar", grants[0].Title)
}

func TestSQLite_ReplaceGrants_EmptySetClears(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme"}
	require.NoError(t, st.CreateCompany(ctx, c))

	require.NoError(t, st.ReplaceGrants(ctx, c.ID, []model.Grant{
		{Agency: "NSF", Title: "Seed grant", AmountUSD: 50_000, AwardYear: 2021},
	}))
	require.NoError(t, st.ReplaceGrants(ctx, c.ID, nil))

	grants, err := st.ListGrants(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestSQLite_ReplacePatentsAndStudies(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := &model.Company{Name: "Acme Bio"}
	require.NoError(t, st.CreateCompany(ctx, c))

	filed := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.ReplacePatentApplications(ctx, c.ID, []model.PatentApplication{
		{ApplicationNumber: "17/123456", Title: "Targeted delivery", Status: "pending", FiledAt: &filed},
	}))
	require.NoError(t, st.ReplaceClinicalStudies(ctx, c.ID, []model.ClinicalStudy{
		{NCTID: "NCT01234567", Title: "Phase 1 safety", Phase: "1", Status: "recruiting", Conditions: []string{"glioma"}},
	}))

	apps, err := st.ListPatentApplications(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "17/123456", apps[0].ApplicationNumber)
	require.NotNil(t, apps[0].FiledAt)

	studies, err := st.ListClinicalStudies(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, studies, 1)
	assert.Equal(t, []string{"glioma"}, studies[0].Conditions)
	assert.Nil(t, studies[0].StartedAt)
}

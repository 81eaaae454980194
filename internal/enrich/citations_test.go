package enrich

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/arxiv"
	"github.com/sells-group/dealflow/pkg/scholar"
)

type fakeScholar struct{ paper *scholar.Paper }

func (f *fakeScholar) MatchPaper(context.Context, string) (*scholar.Paper, error) {
	return f.paper, nil
}

type fakeArxiv struct{ entry *arxiv.Entry }

func (f *fakeArxiv) FindByTitle(context.Context, string) (*arxiv.Entry, error) {
	return f.entry, nil
}

type fakePaperStore struct {
	file      *model.File
	meta      *model.PaperMeta
	embedding []float32
}

func (f *fakePaperStore) GetFile(context.Context, uuid.UUID) (*model.File, error) {
	fl := *f.file
	return &fl, nil
}

func (f *fakePaperStore) SetPaperMeta(_ context.Context, _ uuid.UUID, meta *model.PaperMeta) error {
	f.meta = meta
	return nil
}

func (f *fakePaperStore) SetPaperEmbedding(_ context.Context, _ uuid.UUID, embedding []float32) error {
	f.embedding = embedding
	return nil
}

type fakeEmbedder struct{ vec []float32 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func paperFile() *model.File {
	return &model.File{
		ID:   uuid.New(),
		Kind: model.KindPaper,
		Name: "Learned Grasping Policies",
	}
}

func TestPaperEnricher_CitationGraphWins(t *testing.T) {
	year, cites := 2023, 41
	conn := NewCitations(
		&fakeScholar{paper: &scholar.Paper{
			PaperID:       "ss-1",
			Title:         "Learned Grasping Policies",
			Abstract:      "We present...",
			Year:          &year,
			CitationCount: &cites,
		}},
		&fakeArxiv{entry: &arxiv.Entry{ID: "2301.00001", Title: "should not be used"}},
	)
	store := &fakePaperStore{file: paperFile()}

	e := NewPaperEnricher(conn, &fakeEmbedder{}, store)
	require.NoError(t, e.Enrich(context.Background(), store.file.ID))

	require.NotNil(t, store.meta)
	assert.Equal(t, "Learned Grasping Policies", store.meta.Title)
	require.NotNil(t, store.meta.CitationCount)
	assert.Equal(t, 41, *store.meta.CitationCount)
}

func TestPaperEnricher_FallsBackToPreprintArchive(t *testing.T) {
	conn := NewCitations(
		&fakeScholar{},
		&fakeArxiv{entry: &arxiv.Entry{
			ID:        "2301.00001",
			Title:     "Learned Grasping Policies",
			Summary:   "We present...",
			Published: "2023-01-02T00:00:00Z",
			Authors:   []string{"Dana Reyes"},
		}},
	)
	store := &fakePaperStore{file: paperFile()}

	e := NewPaperEnricher(conn, &fakeEmbedder{}, store)
	require.NoError(t, e.Enrich(context.Background(), store.file.ID))

	require.NotNil(t, store.meta)
	assert.Equal(t, []string{"Dana Reyes"}, store.meta.Authors)
	require.NotNil(t, store.meta.PublishedYear)
	assert.Equal(t, 2023, *store.meta.PublishedYear)
}

func TestPaperEnricher_NoMatchLeavesFileUntouched(t *testing.T) {
	store := &fakePaperStore{file: paperFile()}

	e := NewPaperEnricher(NewCitations(&fakeScholar{}, &fakeArxiv{}), &fakeEmbedder{}, store)
	require.NoError(t, e.Enrich(context.Background(), store.file.ID))
	assert.Nil(t, store.meta)
}

func TestPaperEnricher_RejectsNonPaper(t *testing.T) {
	store := &fakePaperStore{file: &model.File{ID: uuid.New(), Kind: model.KindDeck}}

	e := NewPaperEnricher(NewCitations(&fakeScholar{}, &fakeArxiv{}), &fakeEmbedder{}, store)
	assert.Error(t, e.Enrich(context.Background(), store.file.ID))
}

func TestUpdateEmbedding_UsesAbstract(t *testing.T) {
	file := paperFile()
	file.Paper = &model.PaperMeta{Abstract: "We present..."}
	store := &fakePaperStore{file: file}

	e := NewPaperEnricher(NewCitations(&fakeScholar{}, &fakeArxiv{}), &fakeEmbedder{vec: []float32{0.1, 0.2}}, store)
	require.NoError(t, e.UpdateEmbedding(context.Background(), file.ID))
	assert.Equal(t, []float32{0.1, 0.2}, store.embedding)
}

func TestUpdateEmbedding_NoTextSkips(t *testing.T) {
	store := &fakePaperStore{file: paperFile()}

	e := NewPaperEnricher(NewCitations(&fakeScholar{}, &fakeArxiv{}), &fakeEmbedder{vec: []float32{0.1}}, store)
	require.NoError(t, e.UpdateEmbedding(context.Background(), store.file.ID))
	assert.Nil(t, store.embedding)
}

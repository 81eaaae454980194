package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/store"
)

type fakeServeStore struct {
	deals map[uuid.UUID]*model.Deal
	files map[uuid.UUID][]model.File

	createdDeal *model.Deal
	createdFile *model.File
}

func newFakeServeStore() *fakeServeStore {
	return &fakeServeStore{
		deals: map[uuid.UUID]*model.Deal{},
		files: map[uuid.UUID][]model.File{},
	}
}

func (s *fakeServeStore) CreateDeal(_ context.Context, d *model.Deal) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.createdDeal = d
	s.deals[d.ID] = d
	return nil
}

func (s *fakeServeStore) CreateFile(_ context.Context, f *model.File) error {
	s.createdFile = f
	s.files[f.DealID] = append(s.files[f.DealID], *f)
	return nil
}

func (s *fakeServeStore) GetDeal(_ context.Context, id uuid.UUID) (*model.Deal, error) {
	d, ok := s.deals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (s *fakeServeStore) ListDealFiles(_ context.Context, dealID uuid.UUID) ([]model.File, error) {
	return s.files[dealID], nil
}

type fakeBlobStore struct {
	puts map[string][]byte
}

func (b *fakeBlobStore) Put(_ context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if b.puts == nil {
		b.puts = map[string][]byte{}
	}
	b.puts[path] = data
	return nil
}

func (b *fakeBlobStore) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (b *fakeBlobStore) Open(context.Context, string) (io.ReadCloser, error) { return nil, nil }

func (b *fakeBlobStore) Materialize(context.Context, string) (string, func(), error) {
	return "", func() {}, nil
}

type fakeStarter struct {
	dealID uuid.UUID
	deckID uuid.UUID
	calls  int
	err    error
}

func (s *fakeStarter) StartDeckIngest(_ context.Context, dealID, deckID uuid.UUID) (string, error) {
	s.calls++
	s.dealID, s.deckID = dealID, deckID
	if s.err != nil {
		return "", s.err
	}
	return "run-1", nil
}

func deckUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("deck", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServeHealth(t *testing.T) {
	router := newRouter(newFakeServeStore(), &fakeBlobStore{}, &fakeStarter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDeckIntake_CreatesRecordsAndStartsWorkflow(t *testing.T) {
	st := newFakeServeStore()
	bl := &fakeBlobStore{}
	starter := &fakeStarter{}
	router := newRouter(st, bl, starter, nil)

	body, contentType := deckUpload(t, "acme-seed.pdf", "%PDF-1.4 fake deck")
	req := httptest.NewRequest(http.MethodPost, "/decks", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	require.NotNil(t, st.createdDeal)
	assert.Equal(t, "acme-seed.pdf", st.createdDeal.Name)
	assert.True(t, st.createdDeal.Draft)
	assert.Equal(t, model.StatusPending, st.createdDeal.ProcessingStatus)

	require.NotNil(t, st.createdFile)
	assert.Equal(t, model.KindDeck, st.createdFile.Kind)
	assert.Equal(t, st.createdDeal.ID, st.createdFile.DealID)
	assert.Contains(t, st.createdFile.BlobPath, st.createdFile.ID.String())

	// Blob stored under the file's path before the record was written.
	assert.Equal(t, []byte("%PDF-1.4 fake deck"), bl.puts[st.createdFile.BlobPath])

	assert.Equal(t, 1, starter.calls)
	assert.Equal(t, st.createdDeal.ID, starter.dealID)
	assert.Equal(t, st.createdFile.ID, starter.deckID)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, st.createdDeal.ID.String(), resp["deal_id"])
	assert.Equal(t, "run-1", resp["run_id"])
}

func TestDeckIntake_MissingFile(t *testing.T) {
	router := newRouter(newFakeServeStore(), &fakeBlobStore{}, &fakeStarter{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "no deck attached"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/decks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDealStatus_ReportsReadiness(t *testing.T) {
	st := newFakeServeStore()
	dealID := uuid.New()
	st.deals[dealID] = &model.Deal{
		ID:               dealID,
		Name:             "Acme Robotics Seed",
		Status:           model.DealActive,
		ProcessingStatus: model.StatusSuccess,
	}
	st.files[dealID] = []model.File{
		{ID: uuid.New(), DealID: dealID, Kind: model.KindDeck, ProcessingStatus: model.StatusSuccess},
		{ID: uuid.New(), DealID: dealID, Kind: model.KindPaper, ProcessingStatus: model.StatusStarted},
	}

	router := newRouter(st, &fakeBlobStore{}, &fakeStarter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deals/"+dealID.String()+"/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["ready"]) // paper still in flight
	assert.Equal(t, "SUCCESS", resp["processing_status"])
	assert.Equal(t, float64(2), resp["files"])
}

func TestDealStatus_NotFound(t *testing.T) {
	router := newRouter(newFakeServeStore(), &fakeBlobStore{}, &fakeStarter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deals/"+uuid.NewString()+"/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDealStatus_InvalidID(t *testing.T) {
	router := newRouter(newFakeServeStore(), &fakeBlobStore{}, &fakeStarter{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deals/not-a-uuid/status", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

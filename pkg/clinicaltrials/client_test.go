package clinicaltrials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/resilience"
)

func TestStudiesBySponsor_Paginates(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "Acme Bio", r.URL.Query().Get("query.spons"))
		assert.Equal(t, studyFields, r.URL.Query().Get("fields"))

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			assert.Empty(t, r.URL.Query().Get("pageToken"))
			w.Write([]byte(`{
				"nextPageToken": "tok-2",
				"studies": [{
					"protocolSection": {
						"identificationModule": {"nctId": "NCT00000001", "briefTitle": "Phase 1 safety"},
						"statusModule": {"overallStatus": "RECRUITING", "startDateStruct": {"date": "2024-03"}},
						"designModule": {"phases": ["PHASE1"]},
						"conditionsModule": {"conditions": ["Glioma"]}
					}
				}]
			}`)) //nolint:errcheck
			return
		}
		assert.Equal(t, "tok-2", r.URL.Query().Get("pageToken"))
		w.Write([]byte(`{
			"studies": [{
				"protocolSection": {
					"identificationModule": {"nctId": "NCT00000002", "briefTitle": "Phase 2 efficacy"},
					"statusModule": {"overallStatus": "COMPLETED", "startDateStruct": {"date": "2025-01"}},
					"designModule": {"phases": ["PHASE2"]},
					"conditionsModule": {"conditions": ["Glioma", "Astrocytoma"]}
				}
			}]
		}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	studies, err := c.StudiesBySponsor(context.Background(), "Acme Bio")
	require.NoError(t, err)
	require.Len(t, studies, 2)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, "NCT00000001", studies[0].NCTID)
	assert.Equal(t, []string{"PHASE1"}, studies[0].Phases)
	assert.Equal(t, "2024-03", studies[0].StartDate)
	assert.Equal(t, []string{"Glioma", "Astrocytoma"}, studies[1].Conditions)
}

func TestStudiesBySponsor_NoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": []}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	studies, err := c.StudiesBySponsor(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Empty(t, studies)
}

func TestStudiesBySponsor_ServerErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, err := c.StudiesBySponsor(context.Background(), "Acme Bio")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestStudiesBySponsor_MalformedBodyIsParseError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, err := c.StudiesBySponsor(context.Background(), "Acme Bio")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
}

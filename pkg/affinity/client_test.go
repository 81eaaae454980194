package affinity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/resilience"
)

func TestSearchOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/organizations", r.URL.Path)
		assert.Equal(t, "Acme Robotics", r.URL.Query().Get("term"))

		_, key, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test-key", key)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organizations":[{"id":42,"name":"Acme Robotics","domain":"acme.dev"}]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	orgs, err := c.SearchOrganizations(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, int64(42), orgs[0].ID)
	assert.Equal(t, "acme.dev", orgs[0].Domain)
}

func TestCreateListEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lists/7/list-entries", r.URL.Path)

		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(42), body["entity_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":9,"list_id":7,"entity_id":42}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	entry, err := c.CreateListEntry(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(9), entry.ID)
	assert.Equal(t, int64(7), entry.ListID)
}

func TestSetFieldValueAndNote(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/field-values":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "STRONG_FIT", body["value"])
		case "/notes":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body["content"], "assessment")
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	require.NoError(t, c.SetFieldValue(context.Background(), 101, 42, "STRONG_FIT"))
	require.NoError(t, c.CreateNote(context.Background(), 42, "automated assessment summary"))
	assert.Equal(t, []string{"/field-values", "/notes"}, paths)
}

func TestRateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	_, err := c.SearchOrganizations(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestMalformedBodyIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	_, err := c.SearchOrganizations(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
	assert.False(t, resilience.IsTransient(err))
}

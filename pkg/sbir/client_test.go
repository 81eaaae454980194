package sbir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealflow/internal/resilience"
)

func TestAwardsByFirm_PaginatesUntilShortPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/api/awards", r.URL.Path)
		assert.Equal(t, "Acme Robotics", r.URL.Query().Get("firm"))

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		var awards []Award
		if start == 0 {
			// full page forces a second request
			for i := 0; i < pageSize; i++ {
				awards = append(awards, Award{Firm: "Acme Robotics", AwardTitle: fmt.Sprintf("award %d", i)})
			}
		} else {
			awards = []Award{{Firm: "Acme Robotics", AwardTitle: "last award", AwardYear: 2024}}
		}
		json.NewEncoder(w).Encode(awards)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	awards, err := c.AwardsByFirm(context.Background(), "Acme Robotics")
	require.NoError(t, err)

	require.Len(t, awards, pageSize+1)
	assert.Equal(t, "last award", awards[pageSize].AwardTitle)
	assert.Equal(t, 2024, awards[pageSize].AwardYear)
}

func TestAwardsByFirm_NoAwards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	awards, err := c.AwardsByFirm(context.Background(), "Unknown Firm")
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestAwardsByFirm_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.AwardsByFirm(context.Background(), "Acme Robotics")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestAwardsByFirm_MalformedBodyIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.AwardsByFirm(context.Background(), "Acme Robotics")
	require.Error(t, err)
	assert.True(t, resilience.IsParse(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestAwardAmountUSD(t *testing.T) {
	assert.Equal(t, int64(1_499_999), Award{AwardAmount: "1499999.50"}.AmountUSD())
	assert.Equal(t, int64(0), Award{AwardAmount: "n/a"}.AmountUSD())
	assert.Equal(t, int64(0), Award{}.AmountUSD())
}

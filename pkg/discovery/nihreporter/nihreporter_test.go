package nihreporter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/httpx"
)

func TestFetchDecodesAndPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		var reqBody searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		var results []project
		if calls == 1 {
			for i := 0; i < pageSize; i++ {
				results = append(results, project{CoreProjectNum: "P1", ProjectTitle: "t", ProjectEndDate: "2026-12-31", ProjectStartDate: "2026-01-01"})
			}
		} else {
			results = append(results, project{CoreProjectNum: "PLAST", ProjectTitle: "final", ProjectEndDate: "2026-12-31", ProjectStartDate: "2026-01-01"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{Results: results})
	}))
	defer srv.Close()

	c := New(httpx.NewClient(5*time.Second), srv.URL)
	grants, err := c.Fetch(t.Context(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, grants, pageSize+1)
	assert.Equal(t, "nih_reporter", grants[0].Source)
}

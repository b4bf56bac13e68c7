package nsf

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/httpx"
)

func TestFetchPagesUntilShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var awards []award
		if calls == 1 {
			for i := 0; i < pageSize; i++ {
				awards = append(awards, award{ID: fmt.Sprintf("A%d", i), Title: "t", ExpDate: "12/31/2026", Date: "01/01/2026"})
			}
		} else {
			awards = append(awards, award{ID: "last", Title: "final award", ExpDate: "12/31/2026", Date: "01/01/2026"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(awardSearchResponse{Response: struct {
			Award []award `json:"award"`
		}{Award: awards}})
	}))
	defer srv.Close()

	c := New(httpx.NewClient(5*time.Second), srv.URL)
	grants, err := c.Fetch(t.Context(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, grants, pageSize+1)
	assert.Equal(t, "nsf", grants[0].Source)
	assert.NotNil(t, grants[0].Deadline)
}

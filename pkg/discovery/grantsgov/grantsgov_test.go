package grantsgov

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/httpx"
)

func buildExtractZip(t *testing.T, opps ...opportunity) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("GrantsDBExtract.xml")
	require.NoError(t, err)
	require.NoError(t, xml.NewEncoder(f).Encode(extractRoot{Opportunities: opps}))
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchParsesDailyExtract(t *testing.T) {
	zipBytes := buildExtractZip(t, opportunity{
		OpportunityID:    "GG-1",
		OpportunityTitle: "Rural Broadband Expansion",
		Description:      "Funding for rural broadband",
		AgencyName:       "USDA",
		AwardCeiling:     "500000",
		CloseDate:        "12312026",
		PostDate:         "01012026",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipBytes)
	}))
	defer srv.Close()

	c := New(httpx.NewClient(5*time.Second), func(time.Time) string { return srv.URL })
	grants, err := c.Fetch(t.Context(), time.Now())
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "grants_gov", grants[0].Source)
	assert.Equal(t, "GG-1", grants[0].ExternalID)
	require.NotNil(t, grants[0].AmountMax)
	assert.Equal(t, 500000.0, *grants[0].AmountMax)
	require.NotNil(t, grants[0].Deadline)
}

func TestFetchTreats404AsNoExtractYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(httpx.NewClient(5*time.Second), func(time.Time) string { return srv.URL })
	grants, err := c.Fetch(t.Context(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, grants)
}

package smschannel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTruncatesOverlongBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotBody = req.Body
		_ = json.NewEncoder(w).Encode(sendResponse{SID: "sid-1"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", FromNumber: "+15551234567", Timeout: 5 * time.Second})

	longBody := strings.Repeat("x", 200)
	sid, err := c.Send(t.Context(), "+15559876543", longBody)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)
	assert.Len(t, gotBody, maxBodyLen)
}

func TestSendDoesNotRetryOnFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", FromNumber: "+15551234567", Timeout: 5 * time.Second})

	_, err := c.Send(t.Context(), "+15559876543", "hi")
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "SMS gets a single delivery attempt per spec")
}

func TestTruncateTitleAddsEllipsis(t *testing.T) {
	long := strings.Repeat("a", 60)
	out := TruncateTitle(long)
	assert.LessOrEqual(t, len([]rune(out)), 50)
	assert.True(t, strings.HasSuffix(out, "…"))
}

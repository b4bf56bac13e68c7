package emailchannel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReturnsProviderMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "match-123", req.TrackingID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "msg-1"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", FromAddress: "alerts@grantradar.dev", Timeout: 5 * time.Second, RetryDelays: []time.Duration{time.Millisecond}})

	id, err := c.Send(t.Context(), "researcher@example.edu", "New match", "body", "match-123")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
}

func TestSendRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: "msg-2"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", FromAddress: "alerts@grantradar.dev", Timeout: 5 * time.Second, RetryDelays: []time.Duration{time.Millisecond, time.Millisecond}})

	id, err := c.Send(t.Context(), "researcher@example.edu", "New match", "body", "match-123")
	require.NoError(t, err)
	assert.Equal(t, "msg-2", id)
	assert.Equal(t, 2, attempts)
}

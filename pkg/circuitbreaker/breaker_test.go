package circuitbreaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/models"
)

func TestBreakerExecuteTripsOnConsecutiveFailures(t *testing.T) {
	b := New("embedding_provider", testCfg())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (any, error) { return nil, boom })
		require.Error(t, err)
	}

	assert.Equal(t, models.CircuitOpen, b.State())

	snap := b.Snapshot()
	assert.Equal(t, "embedding_provider", snap.Service)
	assert.Equal(t, models.CircuitOpen, snap.State)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New("slack_webhook", testCfg())

	_, err := b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, models.CircuitClosed, b.State())
}

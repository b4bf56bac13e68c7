package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/circuitbreaker"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/models"
)

type fakeFetcher struct {
	source  string
	results []models.DiscoveredGrant
	err     error
}

func (f *fakeFetcher) Source() string { return f.source }
func (f *fakeFetcher) Fetch(ctx context.Context, lastCheck time.Time) ([]models.DiscoveredGrant, error) {
	return f.results, f.err
}

func newTestAgent(t *testing.T, fetcher Fetcher) (*Agent, bus.Bus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := bus.New(client)
	require.NoError(t, b.EnsureGroup(context.Background(), GrantsStream, "curation_validators"))

	state := bus.NewState(client)
	breaker := circuitbreaker.New(fetcher.Source(), config.CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Second})

	return New(fetcher, b, state, breaker), b
}

func TestRunPublishesFreshGrantsAndDedupsOnSecondRun(t *testing.T) {
	fetcher := &fakeFetcher{source: "nsf", results: []models.DiscoveredGrant{
		{Source: "nsf", ExternalID: "1", Title: "Grant One", DiscoveredAt: time.Now()},
		{Source: "nsf", ExternalID: "2", Title: "Grant Two", DiscoveredAt: time.Now()},
	}}
	agent, b := newTestAgent(t, fetcher)
	ctx := context.Background()

	n, err := agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err := b.Subscribe(ctx, GrantsStream, "curation_validators", "reader-1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	// Second run with the same fetcher results should dedup to zero.
	n, err = agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunReturnsErrorWhenFetchFails(t *testing.T) {
	fetcher := &fakeFetcher{source: "nsf", err: errors.New("upstream down")}
	agent, _ := newTestAgent(t, fetcher)

	n, err := agent.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, n)
}

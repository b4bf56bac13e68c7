// Package discovery implements the per-source grant discovery agents (C4):
// periodically fetch candidate grants, normalize them into
// models.DiscoveredGrant, deduplicate against the bus-side SeenSet, and
// publish to the grants:discovered stream.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/circuitbreaker"
	"github.com/grantradar/grantradar/pkg/models"
)

// GrantsStream is the stream every source publishes discovered grants to.
const GrantsStream = "grants:discovered"

// Fetcher is implemented by each source client: fetch everything new since
// lastCheck, normalized but not yet dedup-filtered.
type Fetcher interface {
	Source() string
	Fetch(ctx context.Context, lastCheck time.Time) ([]models.DiscoveredGrant, error)
}

// Agent wraps a Fetcher with the shared dedup/publish/circuit-breaker
// contract every Discovery source shares (spec §4.2's "Shared base
// contract").
type Agent struct {
	fetcher Fetcher
	bus     bus.Bus
	state   *bus.State
	breaker *circuitbreaker.Breaker
	log     *slog.Logger

	lastCheck time.Time
}

// New builds an Agent around fetcher, publishing through b and tracking
// dedup/last-check state through state.
func New(fetcher Fetcher, b bus.Bus, state *bus.State, breaker *circuitbreaker.Breaker) *Agent {
	return &Agent{
		fetcher: fetcher,
		bus:     b,
		state:   state,
		breaker: breaker,
		log:     slog.With("agent", "discovery", "source", fetcher.Source()),
	}
}

// Discover fetches since the agent's last successful check, filters
// already-seen records, marks the new ones seen, and returns them
// unpublished. Exported so tests and the scraper variant can exercise
// dedup without going through Run's publish step.
func (a *Agent) Discover(ctx context.Context) ([]models.DiscoveredGrant, error) {
	fetched, err := a.fetcher.Fetch(ctx, a.lastCheck)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", a.fetcher.Source(), err)
	}

	fresh := make([]models.DiscoveredGrant, 0, len(fetched))
	for _, g := range fetched {
		hash := bus.SeenHash(g.Source, g.ExternalID, g.Title)
		seen, err := a.state.HasSeen(ctx, a.fetcher.Source(), hash)
		if err != nil {
			return nil, fmt.Errorf("check seen set: %w", err)
		}
		if seen {
			continue
		}
		if err := a.state.MarkSeen(ctx, a.fetcher.Source(), hash); err != nil {
			return nil, fmt.Errorf("mark seen: %w", err)
		}
		fresh = append(fresh, g)
	}
	return fresh, nil
}

// Run executes one full discovery cycle: discover, publish each fresh
// grant, and (only on full success) advance last_check_ts. Partial success
// — some records published, a later one failing — still advances
// last_check_ts and returns the count actually published, per spec §4.2's
// failure semantics.
func (a *Agent) Run(ctx context.Context) (int, error) {
	started := time.Now()

	var (
		fresh []models.DiscoveredGrant
		err   error
	)
	_, breakerErr := a.breaker.Execute(func() (any, error) {
		fresh, err = a.Discover(ctx)
		return nil, err
	})
	if breakerErr != nil {
		a.log.Error("discovery_cycle_failed", "error", breakerErr)
		return 0, fmt.Errorf("discover from %s: %w", a.fetcher.Source(), breakerErr)
	}

	published := 0
	var publishErr error
	for _, g := range fresh {
		if err := a.publish(ctx, g); err != nil {
			publishErr = err
			break
		}
		published++
	}

	if publishErr != nil {
		if published > 0 {
			a.lastCheck = started
		}
		a.log.Error("partial_publish_failure", "published", published, "total", len(fresh), "error", publishErr)
		return published, fmt.Errorf("publish grant from %s after %d successes: %w", a.fetcher.Source(), published, publishErr)
	}

	a.lastCheck = started
	a.log.Info("discovery_cycle_complete", "published", published)
	return published, nil
}

func (a *Agent) publish(ctx context.Context, g models.DiscoveredGrant) error {
	envelope, err := bus.EncodeEnvelope(g)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := a.bus.Publish(ctx, GrantsStream, envelope); err != nil {
		return fmt.Errorf("publish to %s: %w", GrantsStream, err)
	}
	return nil
}

// LastCheck returns the timestamp of the agent's last successful cycle.
func (a *Agent) LastCheck() time.Time {
	return a.lastCheck
}

// SetLastCheck seeds the agent's last-check time, e.g. when restoring from
// a persisted value at startup.
func (a *Agent) SetLastCheck(t time.Time) {
	a.lastCheck = t
}

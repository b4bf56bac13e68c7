package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/database"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/models"
)

func newTestStore(t *testing.T) *entitystore.Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.ApplyMigrations(db.DB, "test"))
	return entitystore.New(database.NewClientFromDB(db))
}

func testMatchingCfg() config.MatchingConfig {
	return config.MatchingConfig{
		VectorThreshold:     0.5,
		TopCandidates:       50,
		LLMRerankLimit:      20,
		LLMBatchSize:        5,
		FinalMatchThreshold: 70,
	}
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestHandlePublishesMatchAboveThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	embedding := unitVector(1536, 0)

	require.NoError(t, store.Profiles.Upsert(ctx, models.UserProfile{
		UserID:           "user-1",
		ResearchAreas:    []string{"infectious disease modeling"},
		ProfileEmbedding: embedding,
		Preferences:      models.NotificationPreferences{EnabledChannels: map[models.Channel]bool{models.ChannelEmail: true}},
	}))

	grantID, err := store.Grants.UpsertValidated(ctx, models.ValidatedGrant{
		DiscoveredGrant: models.DiscoveredGrant{
			Source: "nsf", ExternalID: "award-1", Title: "Infectious Disease Modeling Grant",
			Description: "Supports infectious disease modeling research.", DiscoveredAt: time.Now().UTC(),
		},
		QualityScore: 90,
		Categories:   []string{"Biomedical"},
		Embedding:    embedding,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := bus.New(client)

	// router is left nil: the engine falls back to vector-similarity-only
	// scoring, which a unit-vector exact match drives to 100.
	engine := New(store, b, nil, testMatchingCfg())

	env := models.ValidatedEnvelope{GrantID: grantID, QualityScore: 0.9}
	payload, err := bus.EncodeEnvelope(env)
	require.NoError(t, err)

	require.NoError(t, engine.Handle(ctx, bus.Message{ID: "1-1", Payload: payload}))

	matches, err := store.Matches.ListForUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 100.0, matches[0].FinalScore(), 0.01)

	msgs, err := b.Subscribe(ctx, models.StreamComputed, "test-group", "reader", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var published models.ComputedEnvelope
	require.NoError(t, bus.DecodeEnvelope(msgs[0].Payload, &published))
	assert.Equal(t, "user-1", published.UserID)
	assert.Equal(t, grantID, published.GrantID)
}

func TestHandleSkipsGrantWithoutEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grantID, err := store.Grants.UpsertValidated(ctx, models.ValidatedGrant{
		DiscoveredGrant: models.DiscoveredGrant{Source: "nsf", ExternalID: "award-2", Title: "No Embedding Grant", DiscoveredAt: time.Now().UTC()},
		QualityScore:    90,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := bus.New(client)

	engine := New(store, b, nil, testMatchingCfg())
	env := models.ValidatedEnvelope{GrantID: grantID}
	payload, err := bus.EncodeEnvelope(env)
	require.NoError(t, err)

	require.NoError(t, engine.Handle(ctx, bus.Message{ID: "1-1", Payload: payload}))

	msgs, err := b.Subscribe(ctx, models.StreamComputed, "test-group", "reader", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDerivePriorityThresholds(t *testing.T) {
	now := time.Now().UTC()
	soon := now.Add(5 * 24 * time.Hour)
	far := now.Add(60 * 24 * time.Hour)

	assert.Equal(t, models.PriorityCritical, derivePriority(92, now, &soon))
	assert.Equal(t, models.PriorityHigh, derivePriority(85, now, &far))
	assert.Equal(t, models.PriorityMedium, derivePriority(72, now, &far))
	assert.Equal(t, models.PriorityLow, derivePriority(50, now, &far))
}

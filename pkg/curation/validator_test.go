package curation

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

// fakeEmbedder returns a fixed-length zero vector per input, enough to
// exercise the "embedding generated" bookkeeping without a real provider.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func testCurationCfg() config.CurationConfig {
	return config.CurationConfig{
		QualityThreshold:       70,
		RecentValidatedSize:    1000,
		DuplicateLevenshtein:   2,
		EmbeddingInputMaxChars: 8000,
	}
}

func newTestValidator(t *testing.T, embedder *fakeEmbedder) (*Validator, bus.Bus, *entitystore.Store) {
	t.Helper()
	store := newTestStore(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := bus.New(client)
	state := bus.NewState(client)

	// router is left nil: Validator falls back to the deterministic rubric
	// and ["Other"] categorization when no LLM is wired, which is what
	// these tests exercise.
	v := New(store, b, state, nil, embedder, testCurationCfg())
	return v, b, store
}

func discoveredEnvelopePayload(t *testing.T, g models.DiscoveredEnvelope) []byte {
	t.Helper()
	payload, err := bus.EncodeEnvelope(g)
	require.NoError(t, err)
	return payload
}

func TestHandlePublishesHighQualityGrant(t *testing.T) {
	v, b, store := newTestValidator(t, &fakeEmbedder{})
	ctx := context.Background()

	env := models.DiscoveredEnvelope{
		Source:        "nsf",
		ExternalID:    "award-1",
		Title:         "Infectious Disease Modeling Grant",
		Description:   "Supports early-stage investigators studying infectious disease dynamics.",
		URL:           "https://nsf.gov/award-1",
		FundingAgency: "NSF",
		DiscoveredAt:  time.Now().UTC(),
	}
	msg := bus.Message{ID: "1-1", Payload: discoveredEnvelopePayload(t, env)}

	require.NoError(t, v.Handle(ctx, msg))

	grant, err := store.Grants.GetBySourceExternalID(ctx, "nsf", "award-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Other"}, grant.Categories)
	assert.True(t, grant.EmbeddingGenerated())

	msgs, err := b.Subscribe(ctx, models.StreamValidated, "test-group", "reader", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var published models.ValidatedEnvelope
	require.NoError(t, bus.DecodeEnvelope(msgs[0].Payload, &published))
	assert.Equal(t, grant.GrantID, published.GrantID)
	assert.True(t, published.EmbeddingGenerated)
}

func TestHandleRoutesLowQualityGrantToManualReview(t *testing.T) {
	v, b, store := newTestValidator(t, &fakeEmbedder{})
	ctx := context.Background()

	env := models.DiscoveredEnvelope{
		Source:       "nsf",
		ExternalID:   "award-2",
		Title:        "",
		DiscoveredAt: time.Now().UTC(),
	}
	msg := bus.Message{ID: "1-2", Payload: discoveredEnvelopePayload(t, env)}

	require.NoError(t, v.Handle(ctx, msg))

	_, err := store.Grants.GetBySourceExternalID(ctx, "nsf", "award-2")
	assert.ErrorIs(t, err, entitystore.ErrNotFound, "low-quality grant should not be persisted as a validated grant")

	msgs, err := b.Subscribe(ctx, models.StreamValidated, "test-group", "reader", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleMergesSameIdentityDuplicate(t *testing.T) {
	v, b, _ := newTestValidator(t, &fakeEmbedder{})
	ctx := context.Background()

	env := models.DiscoveredEnvelope{
		Source:        "nsf",
		ExternalID:    "award-3",
		Title:         "Climate Resilience Research Program",
		Description:   "Supports climate adaptation research for coastal communities nationwide.",
		FundingAgency: "NSF",
		DiscoveredAt:  time.Now().UTC(),
	}
	require.NoError(t, v.Handle(ctx, bus.Message{ID: "1-3", Payload: discoveredEnvelopePayload(t, env)}))

	// Same (source, external_id) published again should be treated as the
	// identical grant and merged rather than re-published.
	dup := env
	dup.Description = "Supports climate adaptation research for coastal communities nationwide and inland river basins."
	require.NoError(t, v.Handle(ctx, bus.Message{ID: "1-4", Payload: discoveredEnvelopePayload(t, dup)}))

	msgs, err := b.Subscribe(ctx, models.StreamValidated, "test-group", "reader", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "the second identical-identity grant should merge, not publish again")
}

func TestFallbackQualityScorePenalizesMissingFields(t *testing.T) {
	score, issues := fallbackQualityScore(models.DiscoveredGrant{Title: "Some Grant", DiscoveredAt: time.Now()})
	assert.Equal(t, 60.0, score)
	assert.ElementsMatch(t, []string{"missing_description", "missing_deadline"}, issues)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 1, levenshtein("kitten", "mitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestSanitizeCategoriesFallsBackToOther(t *testing.T) {
	assert.Equal(t, []string{"Other"}, sanitizeCategories([]string{"Not A Real Category"}))
	assert.Equal(t, []string{"Biomedical", "Engineering"}, sanitizeCategories([]string{"Biomedical", "Engineering", "Nonsense"}))
}

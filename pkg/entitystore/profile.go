package entitystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/grantradar/grantradar/pkg/models"
)

// ProfileRepository persists UserProfile rows and runs the phase-1
// vector-similarity candidate query for the Matcher (spec §4.4).
type ProfileRepository struct {
	db *sqlx.DB
}

type profileRow struct {
	UserID             string         `db:"user_id"`
	ResearchAreas      pq.StringArray `db:"research_areas"`
	Methods            pq.StringArray `db:"methods"`
	PastGrants         pq.StringArray `db:"past_grants"`
	Institution        string         `db:"institution"`
	Department         string         `db:"department"`
	Keywords           pq.StringArray `db:"keywords"`
	ProfileEmbedding   NullVector     `db:"profile_embedding"`
	SourceTextHash     string         `db:"source_text_hash"`
	EmbeddingUpdatedAt sql.NullTime   `db:"embedding_updated_at"`
	MinMatchScore      float64        `db:"min_match_score"`
	DigestFrequency    string         `db:"digest_frequency"`
	EnabledChannels    pq.StringArray `db:"enabled_channels"`
	Email              string         `db:"email"`
	Phone              string         `db:"phone"`
	SlackWebhookURL    string         `db:"slack_webhook_url"`
}

func (r profileRow) toModel() models.UserProfile {
	p := models.UserProfile{
		UserID:           r.UserID,
		ResearchAreas:    []string(r.ResearchAreas),
		Methods:          []string(r.Methods),
		PastGrants:       []string(r.PastGrants),
		Institution:      r.Institution,
		Department:       r.Department,
		Keywords:         []string(r.Keywords),
		ProfileEmbedding: r.ProfileEmbedding.Slice(),
		SourceTextHash:   r.SourceTextHash,
		Email:            r.Email,
		Phone:            r.Phone,
		SlackWebhookURL:  r.SlackWebhookURL,
		Preferences: models.NotificationPreferences{
			MinimumMatchScore: r.MinMatchScore,
			DigestFrequency:   models.DigestFrequency(r.DigestFrequency),
			EnabledChannels:   make(map[models.Channel]bool, len(r.EnabledChannels)),
		},
	}
	for _, ch := range r.EnabledChannels {
		p.Preferences.EnabledChannels[models.Channel(ch)] = true
	}
	if r.EmbeddingUpdatedAt.Valid {
		p.EmbeddingUpdatedAt = &r.EmbeddingUpdatedAt.Time
	}
	return p
}

// GetByID fetches a profile by user_id.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*models.UserProfile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	p := row.toModel()
	return &p, nil
}

// Upsert persists p, keyed on user_id.
func (r *ProfileRepository) Upsert(ctx context.Context, p models.UserProfile) error {
	channels := make([]string, 0, len(p.Preferences.EnabledChannels))
	for ch, on := range p.Preferences.EnabledChannels {
		if on {
			channels = append(channels, string(ch))
		}
	}

	const q = `
INSERT INTO profiles (
	user_id, research_areas, methods, past_grants, institution, department, keywords,
	profile_embedding, source_text_hash, embedding_updated_at,
	min_match_score, digest_frequency, enabled_channels, email, phone, slack_webhook_url, updated_at
) VALUES (
	COALESCE(NULLIF($1, ''), gen_random_uuid()::text)::uuid, $2, $3, $4, $5, $6, $7,
	$8, $9, $10,
	$11, $12, $13, $14, $15, $16, now()
)
ON CONFLICT (user_id) DO UPDATE SET
	research_areas = EXCLUDED.research_areas,
	methods = EXCLUDED.methods,
	past_grants = EXCLUDED.past_grants,
	institution = EXCLUDED.institution,
	department = EXCLUDED.department,
	keywords = EXCLUDED.keywords,
	profile_embedding = EXCLUDED.profile_embedding,
	source_text_hash = EXCLUDED.source_text_hash,
	embedding_updated_at = EXCLUDED.embedding_updated_at,
	min_match_score = EXCLUDED.min_match_score,
	digest_frequency = EXCLUDED.digest_frequency,
	enabled_channels = EXCLUDED.enabled_channels,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	slack_webhook_url = EXCLUDED.slack_webhook_url,
	updated_at = now()`

	_, err := r.db.ExecContext(ctx, q,
		p.UserID, pq.Array(p.ResearchAreas), pq.Array(p.Methods), pq.Array(p.PastGrants), p.Institution, p.Department, pq.Array(p.Keywords),
		NewNullVector(p.ProfileEmbedding), p.SourceTextHash, p.EmbeddingUpdatedAt,
		p.Preferences.MinimumMatchScore, string(p.Preferences.DigestFrequency), pq.Array(channels), p.Email, p.Phone, p.SlackWebhookURL,
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// Candidate is one phase-1 vector-similarity match candidate.
type Candidate struct {
	Profile    models.UserProfile
	Similarity float64 // cosine similarity in [0,1]
}

// TopCandidates runs the phase-1 query from spec §4.4: profiles whose
// cosine similarity to embedding exceeds threshold, most similar first,
// capped at limit.
func (r *ProfileRepository) TopCandidates(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Candidate, error) {
	const q = `
SELECT *, 1 - (profile_embedding <=> $1) AS similarity
FROM profiles
WHERE profile_embedding IS NOT NULL
  AND 1 - (profile_embedding <=> $1) > $2
ORDER BY similarity DESC
LIMIT $3`

	type row struct {
		profileRow
		Similarity float64 `db:"similarity"`
	}

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, q, NewNullVector(embedding), threshold, limit); err != nil {
		return nil, fmt.Errorf("vector candidate query: %w", err)
	}

	out := make([]Candidate, 0, len(rows))
	for _, rr := range rows {
		out = append(out, Candidate{Profile: rr.toModel(), Similarity: rr.Similarity})
	}
	return out, nil
}

package entitystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/grantradar/grantradar/pkg/models"
)

// ErrNotFound is returned by Get-style lookups with no matching row.
var ErrNotFound = errors.New("entitystore: not found")

// GrantRepository persists DiscoveredGrant/ValidatedGrant rows.
type GrantRepository struct {
	db *sqlx.DB
}

type grantRow struct {
	GrantID             string         `db:"grant_id"`
	Source              string         `db:"source"`
	ExternalID          string         `db:"external_id"`
	Title               string         `db:"title"`
	Description         string         `db:"description"`
	URL                 string         `db:"url"`
	FundingAgency       string         `db:"funding_agency"`
	AmountMin           sql.NullFloat64 `db:"amount_min"`
	AmountMax           sql.NullFloat64 `db:"amount_max"`
	Deadline            sql.NullTime   `db:"deadline"`
	Eligibility         string         `db:"eligibility"`
	RawData             []byte         `db:"raw_data"`
	DiscoveredAt        time.Time      `db:"discovered_at"`
	PostedAt            sql.NullTime   `db:"posted_at"`
	QualityScore        sql.NullFloat64 `db:"quality_score"`
	Categories          pq.StringArray `db:"categories"`
	Embedding           NullVector     `db:"embedding"`
	ConfidenceScore     sql.NullFloat64 `db:"confidence_score"`
	ValidatedAt         sql.NullTime   `db:"validated_at"`
	Keywords            pq.StringArray `db:"keywords"`
	EligibilityCriteria pq.StringArray `db:"eligibility_criteria"`
}

func (r grantRow) toModel() models.ValidatedGrant {
	v := models.ValidatedGrant{
		DiscoveredGrant: models.DiscoveredGrant{
			Source:        r.Source,
			ExternalID:    r.ExternalID,
			Title:         r.Title,
			Description:   r.Description,
			URL:           r.URL,
			FundingAgency: r.FundingAgency,
			Eligibility:   r.Eligibility,
			DiscoveredAt:  r.DiscoveredAt,
		},
		GrantID:             r.GrantID,
		Categories:          []string(r.Categories),
		Embedding:           r.Embedding.Slice(),
		Keywords:            []string(r.Keywords),
		EligibilityCriteria: []string(r.EligibilityCriteria),
	}
	if r.AmountMin.Valid {
		v.AmountMin = &r.AmountMin.Float64
	}
	if r.AmountMax.Valid {
		v.AmountMax = &r.AmountMax.Float64
	}
	if r.Deadline.Valid {
		v.Deadline = &r.Deadline.Time
	}
	if r.PostedAt.Valid {
		v.PostedAt = &r.PostedAt.Time
	}
	if r.QualityScore.Valid {
		v.QualityScore = r.QualityScore.Float64
	}
	if r.ConfidenceScore.Valid {
		v.ConfidenceScore = r.ConfidenceScore.Float64
	}
	if r.ValidatedAt.Valid {
		v.ValidatedAt = r.ValidatedAt.Time
	}
	if len(r.RawData) > 0 {
		_ = json.Unmarshal(r.RawData, &v.RawData)
	}
	return v
}

// UpsertValidated inserts or, on a (source, external_id) conflict,
// overwrites a grant row with g's fields (spec §4.3 step 6; the
// dedup-merge in step 5 is computed by the caller before calling this).
// Returns the persisted grant_id.
func (r *GrantRepository) UpsertValidated(ctx context.Context, g models.ValidatedGrant) (string, error) {
	rawData, err := json.Marshal(g.RawData)
	if err != nil {
		return "", fmt.Errorf("marshal raw_data: %w", err)
	}

	const q = `
INSERT INTO grants (
	grant_id, source, external_id, title, description, url, funding_agency,
	amount_min, amount_max, deadline, eligibility, raw_data, discovered_at, posted_at,
	quality_score, categories, embedding, confidence_score, validated_at, keywords, eligibility_criteria,
	updated_at
) VALUES (
	COALESCE(NULLIF($1, ''), gen_random_uuid()::text)::uuid, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, $21,
	now()
)
ON CONFLICT (source, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	url = EXCLUDED.url,
	funding_agency = EXCLUDED.funding_agency,
	amount_min = EXCLUDED.amount_min,
	amount_max = EXCLUDED.amount_max,
	deadline = EXCLUDED.deadline,
	eligibility = EXCLUDED.eligibility,
	raw_data = EXCLUDED.raw_data,
	discovered_at = LEAST(grants.discovered_at, EXCLUDED.discovered_at),
	posted_at = EXCLUDED.posted_at,
	quality_score = EXCLUDED.quality_score,
	categories = EXCLUDED.categories,
	embedding = EXCLUDED.embedding,
	confidence_score = EXCLUDED.confidence_score,
	validated_at = EXCLUDED.validated_at,
	keywords = EXCLUDED.keywords,
	eligibility_criteria = EXCLUDED.eligibility_criteria,
	updated_at = now()
RETURNING grant_id`

	var grantID string
	err = r.db.QueryRowContext(ctx, q,
		g.GrantID, g.Source, g.ExternalID, g.Title, g.Description, g.URL, g.FundingAgency,
		nullFloat(g.AmountMin), nullFloat(g.AmountMax), nullTime(g.Deadline), g.Eligibility, rawData, g.DiscoveredAt, nullTime(g.PostedAt),
		g.QualityScore, pq.Array(g.Categories), NewNullVector(g.Embedding), g.ConfidenceScore, g.ValidatedAt, pq.Array(g.Keywords), pq.Array(g.EligibilityCriteria),
	).Scan(&grantID)
	if err != nil {
		return "", fmt.Errorf("upsert validated grant: %w", err)
	}
	return grantID, nil
}

// GetByID fetches a grant by its grant_id.
func (r *GrantRepository) GetByID(ctx context.Context, grantID string) (*models.ValidatedGrant, error) {
	var row grantRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM grants WHERE grant_id = $1`, grantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get grant %s: %w", grantID, err)
	}
	g := row.toModel()
	return &g, nil
}

// GetBySourceExternalID looks up a grant by its (source, external_id)
// identity, used by Curation's same-identity duplicate shortcut (spec §4.3
// step 5): a grant already stored under the same source and external_id.
func (r *GrantRepository) GetBySourceExternalID(ctx context.Context, source, externalID string) (*models.ValidatedGrant, error) {
	var row grantRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM grants WHERE source = $1 AND external_id = $2`, source, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get grant %s/%s: %w", source, externalID, err)
	}
	g := row.toModel()
	return &g, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

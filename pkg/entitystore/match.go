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

// MatchRepository persists Match rows, unique per (grant_id, user_id).
type MatchRepository struct {
	db *sqlx.DB
}

type matchRow struct {
	MatchID          string         `db:"match_id"`
	GrantID          string         `db:"grant_id"`
	UserID           string         `db:"user_id"`
	VectorSimilarity float64        `db:"vector_similarity"`
	LLMMatchScore    float64        `db:"llm_match_score"`
	KeyStrengths     pq.StringArray `db:"key_strengths"`
	Concerns         pq.StringArray `db:"concerns"`
	Reasoning        string         `db:"reasoning"`
	PredictedSuccess float64        `db:"predicted_success"`
	CreatedAt        sql.NullTime   `db:"created_at"`
}

func (r matchRow) toModel() models.Match {
	m := models.Match{
		MatchID:          r.MatchID,
		GrantID:          r.GrantID,
		UserID:           r.UserID,
		VectorSimilarity: r.VectorSimilarity,
		LLMMatchScore:    r.LLMMatchScore,
		KeyStrengths:     []string(r.KeyStrengths),
		Concerns:         []string(r.Concerns),
		Reasoning:        r.Reasoning,
		PredictedSuccess: r.PredictedSuccess,
	}
	if r.CreatedAt.Valid {
		m.CreatedAt = r.CreatedAt.Time
	}
	return m
}

// Upsert persists m, keyed on (grant_id, user_id), and returns the
// persisted match_id.
func (r *MatchRepository) Upsert(ctx context.Context, m models.Match) (string, error) {
	const q = `
INSERT INTO matches (
	match_id, grant_id, user_id, vector_similarity, llm_match_score,
	key_strengths, concerns, reasoning, predicted_success
) VALUES (
	COALESCE(NULLIF($1, ''), gen_random_uuid()::text)::uuid, $2, $3, $4, $5,
	$6, $7, $8, $9
)
ON CONFLICT (grant_id, user_id) DO UPDATE SET
	vector_similarity = EXCLUDED.vector_similarity,
	llm_match_score = EXCLUDED.llm_match_score,
	key_strengths = EXCLUDED.key_strengths,
	concerns = EXCLUDED.concerns,
	reasoning = EXCLUDED.reasoning,
	predicted_success = EXCLUDED.predicted_success
RETURNING match_id`

	var matchID string
	err := r.db.QueryRowContext(ctx, q,
		m.MatchID, m.GrantID, m.UserID, m.VectorSimilarity, m.LLMMatchScore,
		pq.Array(m.KeyStrengths), pq.Array(m.Concerns), m.Reasoning, m.PredictedSuccess,
	).Scan(&matchID)
	if err != nil {
		return "", fmt.Errorf("upsert match (grant=%s, user=%s): %w", m.GrantID, m.UserID, err)
	}
	return matchID, nil
}

// GetByID fetches a match by its match_id.
func (r *MatchRepository) GetByID(ctx context.Context, matchID string) (*models.Match, error) {
	var row matchRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM matches WHERE match_id = $1`, matchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	m := row.toModel()
	return &m, nil
}

// ListForUser returns a user's matches, most recent first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Match, error) {
	var rows []matchRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM matches WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches for user %s: %w", userID, err)
	}
	out := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

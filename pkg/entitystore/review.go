package entitystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/grantradar/grantradar/pkg/models"
)

// ManualReviewRepository appends ManualReviewItem rows. Append-only: no
// update or delete, the table is consumed by humans out of band.
type ManualReviewRepository struct {
	db *sqlx.DB
}

// Insert appends item and returns its generated review_id.
func (r *ManualReviewRepository) Insert(ctx context.Context, item models.ManualReviewItem) (string, error) {
	snap, err := json.Marshal(item.GrantSnap)
	if err != nil {
		return "", fmt.Errorf("marshal grant_snap: %w", err)
	}

	const q = `
INSERT INTO manual_review_items (grant_id, reason, quality_score, issues, grant_snap)
VALUES ($1, $2, $3, $4, $5)
RETURNING review_id`

	var reviewID string
	err = r.db.QueryRowContext(ctx, q, item.GrantID, item.Reason, item.QualityScore, pq.Array(item.Issues), snap).Scan(&reviewID)
	if err != nil {
		return "", fmt.Errorf("insert manual review item for grant %s: %w", item.GrantID, err)
	}
	return reviewID, nil
}

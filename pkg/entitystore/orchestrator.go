package entitystore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grantradar/grantradar/pkg/models"
)

// OrchestratorRepository appends autoscaling decision snapshots for
// dashboards and audit (spec.md §4.6.4's original persists the same
// decision record for observability).
type OrchestratorRepository struct {
	db *sqlx.DB
}

type orchestratorSnapshotRow struct {
	ID            string    `db:"id"`
	QueueDepth    int       `db:"queue_depth"`
	ActiveWorkers int       `db:"active_workers"`
	Decision      string    `db:"decision"`
	Reason        string    `db:"reason"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r orchestratorSnapshotRow) toModel() models.OrchestratorSnapshot {
	return models.OrchestratorSnapshot{
		ID:            r.ID,
		QueueDepth:    r.QueueDepth,
		ActiveWorkers: r.ActiveWorkers,
		Decision:      models.ScalingDecision(r.Decision),
		Reason:        r.Reason,
		CreatedAt:     r.CreatedAt,
	}
}

// Insert appends snap and returns its generated id.
func (r *OrchestratorRepository) Insert(ctx context.Context, snap models.OrchestratorSnapshot) (string, error) {
	const q = `
INSERT INTO orchestrator_snapshots (queue_depth, active_workers, decision, reason)
VALUES ($1, $2, $3, $4)
RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, q, snap.QueueDepth, snap.ActiveWorkers, string(snap.Decision), snap.Reason).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert orchestrator snapshot: %w", err)
	}
	return id, nil
}

// Recent returns the last limit snapshots, most recent first.
func (r *OrchestratorRepository) Recent(ctx context.Context, limit int) ([]models.OrchestratorSnapshot, error) {
	var rows []orchestratorSnapshotRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM orchestrator_snapshots ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent orchestrator snapshots: %w", err)
	}
	out := make([]models.OrchestratorSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

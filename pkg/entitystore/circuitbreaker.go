package entitystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grantradar/grantradar/pkg/models"
)

// CircuitBreakerRepository mirrors in-process breaker state to Postgres for
// dashboards (spec §5's "circuit-breaker state ... mirrored to the store").
type CircuitBreakerRepository struct {
	db *sqlx.DB
}

type circuitBreakerRow struct {
	Service         string       `db:"service"`
	State           string       `db:"state"`
	FailureCount    int          `db:"failure_count"`
	LastFailureAt   sql.NullTime `db:"last_failure_at"`
	RecoveryTimeout int64        `db:"recovery_timeout"`
}

func (r circuitBreakerRow) toModel() models.CircuitBreakerState {
	s := models.CircuitBreakerState{
		Service:         r.Service,
		State:           models.CircuitState(r.State),
		FailureCount:    r.FailureCount,
		RecoveryTimeout: time.Duration(r.RecoveryTimeout),
	}
	if r.LastFailureAt.Valid {
		s.LastFailureAt = &r.LastFailureAt.Time
	}
	return s
}

// Upsert persists snap, keyed on service name.
func (r *CircuitBreakerRepository) Upsert(ctx context.Context, snap models.CircuitBreakerState) error {
	const q = `
INSERT INTO circuit_breaker_snapshots (service, state, failure_count, last_failure_at, recovery_timeout, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (service) DO UPDATE SET
	state = EXCLUDED.state,
	failure_count = EXCLUDED.failure_count,
	last_failure_at = EXCLUDED.last_failure_at,
	recovery_timeout = EXCLUDED.recovery_timeout,
	updated_at = now()`

	_, err := r.db.ExecContext(ctx, q, snap.Service, string(snap.State), snap.FailureCount, nullTime(snap.LastFailureAt), int64(snap.RecoveryTimeout))
	if err != nil {
		return fmt.Errorf("upsert circuit breaker snapshot for %s: %w", snap.Service, err)
	}
	return nil
}

// ListAll returns every tracked breaker's current mirrored state.
func (r *CircuitBreakerRepository) ListAll(ctx context.Context) ([]models.CircuitBreakerState, error) {
	var rows []circuitBreakerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM circuit_breaker_snapshots ORDER BY service`); err != nil {
		return nil, fmt.Errorf("list circuit breaker snapshots: %w", err)
	}
	out := make([]models.CircuitBreakerState, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// Package entitystore implements the entity store (C2): persistent
// records for grants, profiles, matches, alert deliveries, and
// manual-review items, including the vector-similarity query backing
// Matcher's phase-1 candidate selection (spec §4.4). Built on sqlx+pgx
// rather than a generated ORM client — see pkg/database's package doc for
// why.
package entitystore

import (
	"github.com/jmoiron/sqlx"

	"github.com/grantradar/grantradar/pkg/database"
)

// Store groups every repository behind one constructor so agents wire a
// single dependency.
type Store struct {
	Grants          *GrantRepository
	Profiles        *ProfileRepository
	Matches         *MatchRepository
	AlertDeliveries *AlertDeliveryRepository
	ManualReview    *ManualReviewRepository
	CircuitBreakers *CircuitBreakerRepository
	Orchestrator    *OrchestratorRepository
}

// New builds a Store backed by client's connection pool.
func New(client *database.Client) *Store {
	db := client.DB
	return &Store{
		Grants:          &GrantRepository{db: db},
		Profiles:        &ProfileRepository{db: db},
		Matches:         &MatchRepository{db: db},
		AlertDeliveries: &AlertDeliveryRepository{db: db},
		ManualReview:    &ManualReviewRepository{db: db},
		CircuitBreakers: &CircuitBreakerRepository{db: db},
		Orchestrator:    &OrchestratorRepository{db: db},
	}
}

// tx is the subset of *sqlx.DB/*sqlx.Tx every repository method needs; both
// types satisfy it. The repositories themselves hold a *sqlx.DB, so none of
// them runs inside a caller-managed transaction.
type tx interface {
	sqlx.Ext
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
}

var _ tx = (*sqlx.DB)(nil)
var _ tx = (*sqlx.Tx)(nil)

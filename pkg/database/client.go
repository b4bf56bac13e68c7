// Package database provides the Postgres connection pool and migration
// runner backing the entity store (C2). It wraps sqlx.DB rather than a
// generated ORM client: the schema is simple enough (grants, profiles,
// matches, alert deliveries, manual-review items, breaker/orchestrator
// snapshots) that hand-written SQL through sqlx is clearer than a codegen
// layer, and keeps every query auditable in pkg/entitystore.
package database

import (
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver with database/sql

	"github.com/grantradar/grantradar/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps *sqlx.DB for entity-store repositories.
type Client struct {
	*sqlx.DB
}

// NewClient opens a connection pool per cfg, applies pending migrations, and
// returns a ready-to-use Client.
func NewClient(cfg config.DatabaseConfig) (*Client, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := runMigrations(db.DB, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{DB: db}, nil
}

// NewClientFromDB wraps an existing *sqlx.DB, useful for tests against a
// testcontainers-backed Postgres.
func NewClientFromDB(db *sqlx.DB) *Client {
	return &Client{DB: db}
}

// ApplyMigrations runs every pending embedded migration against db. Exported
// for tests that open their own testcontainers-backed connection and need
// the same schema NewClient would have applied.
func ApplyMigrations(db *stdsql.DB, databaseName string) error {
	return runMigrations(db, databaseName)
}

// runMigrations applies every pending migration embedded under ./migrations.
func runMigrations(db *stdsql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the migration source. Calling m.Close() would also close
	// the shared *sql.DB via postgres.WithInstance, breaking the pool we
	// just handed to sqlx.
	return sourceDriver.Close()
}

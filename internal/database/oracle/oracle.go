// Package oracle stores people in Oracle Database 23ai using its VECTOR type.
package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/migrate"
	_ "github.com/sijms/go-ora/v2"
)

// Pool manages an Oracle connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool opens a connection pool from an oracle:// URL.
func NewPool(url string, maxOpen, maxIdle int) (*Pool, error) {
	if url == "" {
		return nil, errors.New("oracle connection URL is required (DB_USERNAME, DB_PASSWORD, DB_DSN)")
	}

	db, err := sql.Open("oracle", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Oracle: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// alreadyExists matches ORA-00955 (name is already used by an existing object)
// and ORA-01408 (such column list already indexed).
func alreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ORA-00955") || strings.Contains(msg, "ORA-01408")
}

var dialect = migrate.Dialect{
	Name: "oracle",
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR2(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT SYSTIMESTAMP
		)`,
	Insert:      "INSERT INTO schema_migrations (version) VALUES (:1)",
	Separator:   "/",
	IgnoreError: alreadyExists,
}

func (p *Pool) migrator() *migrate.Runner {
	return migrate.New(p.db, migrationsFS, "migrations", dialect)
}

// Migrate applies all pending migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.migrator().Migrate(ctx); err != nil {
		return fmt.Errorf("oracle migrate: %w", err)
	}
	return nil
}

// MigrationsApplied returns the list of applied migrations.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	versions, err := p.migrator().Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle migrations: %w", err)
	}
	return versions, nil
}

// Initialize connects to Oracle, runs migrations and registers the people
// repository as the active storage backend.
func Initialize(cfg *config.Config, metric database.Metric) (*Pool, error) {
	pool, err := NewPool(cfg.Oracle.ConnectionURL(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, err
	}

	if err := pool.Migrate(context.Background()); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := NewPersonRepository(pool, metric)
	database.RegisterBackend(config.DriverOracle,
		func() database.PersonReader { return repo },
		func() database.PersonWriter { return repo },
	)
	database.RegisterMigrationLister(pool)
	return pool, nil
}

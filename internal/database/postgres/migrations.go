package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/kozaktomas/face-search/internal/database/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dialect = migrate.Dialect{
	Name: "postgres",
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	Insert: "INSERT INTO schema_migrations (version) VALUES ($1)",
}

func (p *Pool) migrator() *migrate.Runner {
	return migrate.New(p.db, migrationsFS, "migrations", dialect)
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.migrator().Migrate(ctx); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	versions, err := p.migrator().Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return versions, nil
}

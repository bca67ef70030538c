package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/mariadb"
	"github.com/kozaktomas/face-search/internal/database/oracle"
	"github.com/kozaktomas/face-search/internal/database/postgres"
)

// initDatabase connects to the configured backend, applies migrations and
// registers it as the active person store. The returned closer releases the pool.
func initDatabase(cfg *config.Config) (io.Closer, error) {
	metric, err := database.ParseMetric(cfg.Search.Metric)
	if err != nil {
		return nil, err
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Initialize(&cfg.Database, metric)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return pool, nil

	case config.DriverMariaDB:
		if cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		fmt.Printf("Connecting to MariaDB database...\n")
		pool, err := mariadb.Initialize(&cfg.Database, metric)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return pool, nil

	case config.DriverOracle:
		if cfg.Oracle.DSN == "" {
			return nil, errors.New("DB_DSN environment variable is required")
		}
		fmt.Printf("Connecting to Oracle database...\n")
		pool, err := oracle.Initialize(cfg, metric)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Oracle: %w", err)
		}
		return pool, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many people are stored and searchable",
	RunE:  runStats,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and list the applied versions",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	pool, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	reader, err := database.GetPersonReader(ctx)
	if err != nil {
		return err
	}

	stats, err := reader.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Backend:        %s\n", database.BackendName())
	fmt.Printf("People:         %d\n", stats.Total)
	fmt.Printf("With embedding: %d\n", stats.WithEmbedding)
	fmt.Printf("With birthday:  %d\n", stats.WithBirthday)
	fmt.Printf("With image:     %d\n", stats.WithImage)
	fmt.Printf("Searchable:     %d\n", stats.Searchable)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	// initDatabase applies pending migrations before registering the backend
	pool, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	lister := database.GetMigrationLister()
	if lister == nil {
		return fmt.Errorf("backend %s does not report migrations", database.BackendName())
	}

	versions, err := lister.MigrationsApplied(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	fmt.Printf("Applied migrations (%s):\n", database.BackendName())
	for _, v := range versions {
		fmt.Printf("  %s\n", v)
	}
	return nil
}

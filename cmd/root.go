package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-search",
	Short: "Face similarity search over a people image dataset",
	Long: `Face Search ingests a dataset of people images, stores a face embedding
for every record in a vector-capable database (PostgreSQL with pgvector,
MariaDB or Oracle) and answers "who looks like this" queries over HTTP
or from the command line.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

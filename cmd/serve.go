package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/dataset"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Search web server.
It serves the /hello and /encode_face endpoints, the /api/v1 API
(people, search, stats and background population jobs) and a small
browser UI for uploading a face and browsing the closest matches.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("log-file", "", "Also write logs to this file, rotated daily")
	serveCmd.Flags().Int("log-max-age", 7, "Days to keep rotated log files")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "Extra CORS origin allowed to call the API (repeatable)")
}

// applyServeFlags overrides environment configuration with explicit flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if logFile := mustGetString(cmd, "log-file"); logFile != "" {
		cfg.Web.LogFile = logFile
	}
	cfg.Web.AllowedOrigins = append(cfg.Web.AllowedOrigins, mustGetStringSlice(cmd, "allowed-origin")...)
}

// datasetLoader returns a loader that opens the cached dataset, downloading it when missing.
func datasetLoader(cfg *config.Config) func(ctx context.Context, progress dataset.Progress) (ingest.Source, error) {
	client := dataset.NewHubClient(cfg.Dataset.ServerURL)
	return func(ctx context.Context, progress dataset.Progress) (ingest.Source, error) {
		ds, err := dataset.Load(ctx, client, cfg.Dataset.Name, cfg.Dataset.Split, cfg.Dataset.CacheDir, progress)
		if err != nil {
			return nil, err
		}
		return ds, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	var logOutput io.Writer = os.Stdout
	if cfg.Web.LogFile != "" {
		maxAge := time.Duration(mustGetInt(cmd, "log-max-age")) * 24 * time.Hour
		rl, err := web.NewRotatingLog(cfg.Web.LogFile, maxAge)
		if err != nil {
			return err
		}
		defer rl.Close()
		logOutput = io.MultiWriter(os.Stdout, rl)
		log.SetOutput(logOutput)
	}

	metric, err := database.ParseMetric(cfg.Search.Metric)
	if err != nil {
		return err
	}

	pool, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	fmt.Printf("Using %s backend (%s distance)\n", database.BackendName(), metric)

	encoder, err := facerec.New(cfg.Encoder)
	if err != nil {
		return fmt.Errorf("failed to create face encoder: %w", err)
	}
	if c, ok := encoder.(io.Closer); ok {
		defer c.Close()
	}
	fmt.Printf("Face encoder: %s\n", encoder.Model())

	server := web.NewServer(cfg, web.Deps{
		Encoder:    encoder,
		Metric:     metric,
		LoadSource: datasetLoader(cfg),
		LogOutput:  logOutput,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Search on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

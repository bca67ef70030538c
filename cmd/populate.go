package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/dataset"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/ingest"
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Load the people dataset into the database",
	Long: `Download (on first use) and cache the people image dataset, detect the face
in every image and store its embedding together with the person's metadata.
Records without a detectable face are stored with no embedding; records whose
image cannot be decoded are skipped.

The process can be stopped and resumed - records already stored are skipped.

Examples:
  # Populate the whole dataset
  face-search populate

  # Use 4 parallel workers
  face-search populate --concurrency 4

  # Only the first 100 records, without writing anything
  face-search populate --limit 100 --dry-run`,
	RunE: runPopulate,
}

func init() {
	rootCmd.AddCommand(populateCmd)

	populateCmd.Flags().Int("offset", 0, "Index of the first record to process")
	populateCmd.Flags().Int("limit", 0, "Limit number of records to process (0 = no limit)")
	populateCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel workers")
	populateCmd.Flags().Bool("dry-run", false, "Detect faces but do not write to the database")
	populateCmd.Flags().String("dataset-dir", "", "Dataset cache directory (default from DATASET_CACHE_DIR)")
}

func runPopulate(cmd *cobra.Command, args []string) error {
	opts := ingest.Options{
		Offset:      mustGetInt(cmd, "offset"),
		Limit:       mustGetInt(cmd, "limit"),
		Concurrency: mustGetInt(cmd, "concurrency"),
		DryRun:      mustGetBool(cmd, "dry-run"),
	}
	if opts.Offset < 0 || opts.Limit < 0 {
		return fmt.Errorf("--offset and --limit must not be negative")
	}

	cfg := config.Load()
	if dir := mustGetString(cmd, "dataset-dir"); dir != "" {
		cfg.Dataset.CacheDir = dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var writer database.PersonWriter
	if !opts.DryRun {
		pool, err := initDatabase(cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if writer, err = database.GetPersonWriter(ctx); err != nil {
			return err
		}
	}

	encoder, err := facerec.New(cfg.Encoder)
	if err != nil {
		return fmt.Errorf("failed to create face encoder: %w", err)
	}
	if c, ok := encoder.(io.Closer); ok {
		defer c.Close()
	}

	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Dataset %s: %d records in %s\n", cfg.Dataset.Name, ds.Len(), ds.Dir())

	total := ds.Len() - opts.Offset
	if opts.Limit > 0 {
		total = min(total, opts.Limit)
	}
	if total <= 0 {
		fmt.Println("Nothing to process")
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("people"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	populator := ingest.New(writer, encoder)
	populator.Progress = func(done, total int) {
		_ = bar.Set(done)
	}

	result, err := populator.Run(ctx, ds, opts)
	_ = bar.Finish()
	fmt.Println()
	if result != nil {
		printPopulateSummary(result, opts.DryRun)
	}
	return err
}

// loadDataset opens the cached dataset, downloading it first when needed.
func loadDataset(ctx context.Context, cfg *config.Config) (*dataset.Dataset, error) {
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Downloading dataset"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("rows"),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	ds, err := dataset.Load(ctx, dataset.NewHubClient(cfg.Dataset.ServerURL),
		cfg.Dataset.Name, cfg.Dataset.Split, cfg.Dataset.CacheDir, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func printPopulateSummary(r *ingest.Result, dryRun bool) {
	title := "Population complete"
	if dryRun {
		title = "Dry run complete (nothing written)"
	}
	fmt.Println(title)
	fmt.Printf("  Processed:        %d\n", r.Total)
	fmt.Printf("  Inserted:         %d\n", r.Inserted)
	fmt.Printf("  Already stored:   %d\n", r.Existing)
	fmt.Printf("  Skipped:          %d\n", r.Skipped)
	fmt.Printf("  Failed:           %d\n", r.Failed)
	fmt.Printf("  No face detected: %d\n", r.NoFace)
	fmt.Printf("  Invalid birthday: %d\n", r.InvalidBirthday)
}

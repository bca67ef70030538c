package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facerec"
	"github.com/kozaktomas/face-search/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find the stored people that look most like a face",
	Long: `Detect the face in a local image and list the closest stored people,
using the same filters as the /encode_face endpoint.

Examples:
  face-search search me.jpg
  face-search search me.jpg --num-rows 5 --tolerance 0.3 --min-age 18 --max-age 40
  face-search search me.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("num-rows", constants.DefaultNumRows, "Maximum number of matches")
	searchCmd.Flags().Float64("tolerance", constants.DefaultTolerance, "Only return matches closer than this distance")
	searchCmd.Flags().Int("min-age", constants.DefaultMinAge, "Minimum age in years")
	searchCmd.Flags().Int("max-age", constants.DefaultMaxAge, "Maximum age in years")
	searchCmd.Flags().Bool("json", false, "Print matches as JSON")
}

type searchMatchOutput struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

type searchOutput struct {
	Image   string              `json:"image"`
	Metric  database.Metric     `json:"metric"`
	Params  search.Params       `json:"params"`
	Matches []searchMatchOutput `json:"matches"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	params := search.Params{
		NumRows:   mustGetInt(cmd, "num-rows"),
		Tolerance: mustGetFloat64(cmd, "tolerance"),
		MinAge:    mustGetInt(cmd, "min-age"),
		MaxAge:    mustGetInt(cmd, "max-age"),
	}.Clamp()

	cfg := config.Load()
	metric, err := database.ParseMetric(cfg.Search.Metric)
	if err != nil {
		return err
	}

	pool, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	encoder, err := facerec.New(cfg.Encoder)
	if err != nil {
		return fmt.Errorf("failed to create face encoder: %w", err)
	}
	if c, ok := encoder.(io.Closer); ok {
		defer c.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reader, err := database.GetPersonReader(ctx)
	if err != nil {
		return err
	}

	matches, err := search.NewService(reader, encoder, metric).SearchBytes(ctx, data, params)
	if errors.Is(err, facerec.ErrNoFace) {
		return fmt.Errorf("%s: no face detected", path)
	}
	if err != nil {
		return err
	}

	out := searchOutput{Image: path, Metric: metric, Params: params, Matches: make([]searchMatchOutput, len(matches))}
	for i, m := range matches {
		out.Matches[i] = searchMatchOutput{ID: m.ID, Name: m.Name, Distance: m.Distance}
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printSearchTable(os.Stdout, out)
	return nil
}

// printSearchTable writes matches as a colored table, closest first.
func printSearchTable(w io.Writer, out searchOutput) {
	header := color.New(color.Bold)
	idColor := color.New(color.FgCyan)
	nameColor := color.New(color.FgGreen)
	distColor := color.New(color.FgYellow)

	fmt.Fprintf(w, "Matches for %s (%s distance < %g, age %d-%d)\n\n",
		out.Image, out.Metric, out.Params.Tolerance, out.Params.MinAge, out.Params.MaxAge)

	if len(out.Matches) == 0 {
		color.New(color.FgRed).Fprintln(w, "No matches found")
		return
	}

	header.Fprintf(w, "%-4s %-10s %-40s %s\n", "#", "ID", "NAME", "DISTANCE")
	for i, m := range out.Matches {
		fmt.Fprintf(w, "%-4d ", i+1)
		idColor.Fprintf(w, "%-10d ", m.ID)
		nameColor.Fprintf(w, "%-40s ", m.Name)
		distColor.Fprintf(w, "%.4f\n", m.Distance)
	}
}

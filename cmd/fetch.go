package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mobiodiv/internal/config"
	"github.com/sells-group/mobiodiv/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch-open-data <place>",
	Short: "Download the open datasets for a place",
	Long: "Resolves the place to an area of interest, then fetches the WorldCover clip, " +
		"the OSM drivable road network and GBIF occurrences. Only a failure to resolve " +
		"the area makes the command exit non-zero.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bufferKM := cfg.AOI.BufferKM
		if cmd.Flags().Changed("buffer-km") {
			bufferKM, _ = cmd.Flags().GetFloat64("buffer-km")
		}
		if cmd.Flags().Changed("boundary") {
			cfg.AOI.BoundaryFile, _ = cmd.Flags().GetString("boundary")
		}
		if cmd.Flags().Changed("taxon") {
			cfg.Occurrence.Taxon, _ = cmd.Flags().GetString("taxon")
		}
		if cmd.Flags().Changed("limit") {
			cfg.Occurrence.Limit, _ = cmd.Flags().GetInt("limit")
		}
		if cmd.Flags().Changed("export-shapefile") {
			cfg.Roads.ExportShapefile, _ = cmd.Flags().GetBool("export-shapefile")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if bufferKM < 0 {
			return eris.Errorf("--buffer-km must be >= 0, got %g", bufferKM)
		}

		return runFetch(ctx, cmd.OutOrStdout(), cfg, args[0], bufferKM)
	},
}

// runFetch runs one acquisition and prints the per-stage outcome.
func runFetch(ctx context.Context, out io.Writer, c *config.Config, place string, bufferKM float64) error {
	st := initStore(ctx, c)
	defer st.Close() //nolint:errcheck

	report, err := newOrchestrator(c, st).Run(ctx, place, bufferKM)
	if report != nil {
		fmt.Fprint(out, pipeline.FormatReport(report))
	}
	if err != nil {
		return eris.Wrap(err, "fetch-open-data")
	}
	return nil
}

func init() {
	fetchCmd.Flags().Float64("buffer-km", 20, "buffer around the place boundary in kilometres")
	fetchCmd.Flags().String("boundary", "", "boundary file (.shp, .geojson) used instead of geocoding")
	fetchCmd.Flags().String("taxon", "", "scientific name to query occurrences for (default from config)")
	fetchCmd.Flags().Int("limit", 0, "maximum number of occurrence records (default from config)")
	fetchCmd.Flags().Bool("export-shapefile", false, "also write the road network as a shapefile")
	rootCmd.AddCommand(fetchCmd)
}

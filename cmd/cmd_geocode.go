// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/jcodagnone/postcodes/batch"
	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/spatial"
	"github.com/jcodagnone/postcodes/utils/textutils"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve postcodes to coordinates",
}

var (
	batchOptions = &batch.Options{}
	noCache      bool
	compare      bool
)

var geocodeRunCmd = &cobra.Command{
	Use:   "run <input>",
	Short: "Geocode every postcode of a CSV or Parquet file",
	Long: `Reads the input table, resolves the postcode column row by row and writes
the table back with latitude, longitude and geocoded columns. Progress is saved
to <output>.temp every --checkpoint-every rows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchOptions.Input = args[0]
		if batchOptions.Output == "" {
			batchOptions.Output = defaultOutput(batchOptions.Input)
		}

		batchOptions.UseCache = !noCache

		db, repo, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		geocoder := geocoding.NewDefaultGeocoder(geocodingOptions, nil)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		summary, err := batch.NewDriver(db, geocoder, repo, batchOptions).Run(ctx)
		if summary != nil {
			summary.Log()
		}

		return err
	},
}

// defaultOutput places results next to the input: post_codes.csv becomes
// post_codes_geocoded.csv.
func defaultOutput(input string) string {
	ext := filepath.Ext(input)

	return strings.TrimSuffix(input, ext) + "_geocoded" + ext
}

var geocodeLookupCmd = &cobra.Command{
	Use:   "lookup [postcode...]",
	Short: "Resolve postcodes given as arguments or one per line on stdin",
	Long: `Resolves each postcode with the alternating fallback geocoder and prints
the postcode followed by latitude, longitude and the provider that answered.

$ echo "SW1A 1AA" | postcodes geocode lookup
SW1A 1AA	51.501009	-0.141588	postcodes_io
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if compare {
			postcodesIO := geocoding.NewPostcodesIOClient(geocodingOptions)
			nominatim := geocoding.NewNominatimClient(geocodingOptions)

			return eachPostcode(cmd, args, func(postcode string) {
				comparePostcode(ctx, out, postcodesIO, nominatim, postcode)
			})
		}

		geocoder := geocoding.NewDefaultGeocoder(geocodingOptions, nil)

		err := eachPostcode(cmd, args, func(postcode string) {
			res, found := geocoder.Resolve(ctx, postcode)
			if !found {
				fmt.Fprintf(out, "%s\tnot found\n", postcode)

				return
			}

			fmt.Fprintf(out, "%s\t%.6f\t%.6f\t%s\n", postcode, res.Point.Lat, res.Point.Lng, res.Provider)
		})

		for _, p := range geocoding.Providers() {
			log.Printf("%s: %d requests", p.DisplayName(), geocoder.Successes(p))
		}

		return err
	},
}

// eachPostcode calls fn for every argument, or for every non blank stdin
// line when there are none.
func eachPostcode(cmd *cobra.Command, args []string, fn func(postcode string)) error {
	if len(args) > 0 {
		for _, arg := range args {
			fn(textutils.NormalizePostcode(arg))
		}

		return nil
	}

	input := cmd.InOrStdin()
	if f, ok := input.(*os.File); ok && isTerminal(f) {
		fmt.Fprintln(os.Stderr, "Enter postcodes to resolve, one per line…")
	}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if line := scanner.Text(); !textutils.IsBlank(line) {
			fn(textutils.NormalizePostcode(line))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

// comparePostcode asks both providers directly and reports how far apart
// their answers are.
func comparePostcode(
	ctx context.Context,
	out io.Writer,
	postcodesIO *geocoding.PostcodesIOClient,
	nominatim *geocoding.NominatimClient,
	postcode string,
) {
	var points []*spatial.Point

	for _, p := range []struct {
		provider geocoding.Provider
		request  geocoding.RequestFunc
	}{
		{geocoding.PostcodesIO, postcodesIO.Lookup},
		{geocoding.Nominatim, nominatim.Search},
	} {
		point, err := p.request(ctx, postcode)
		if err != nil {
			fmt.Fprintf(out, "%s\t%s\terror: %v\n", postcode, p.provider, err)

			continue
		}

		points = append(points, &point)
		fmt.Fprintf(out, "%s\t%s\t%.6f\t%.6f\n", postcode, p.provider, point.Lat, point.Lng)
	}

	if len(points) == 2 {
		fmt.Fprintf(out, "%s\tdistance\t%.0fm\n", postcode, points[0].HaversineDistance(points[1]))
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	geocodeCmd.AddCommand(geocodeRunCmd)
	geocodeCmd.AddCommand(geocodeLookupCmd)

	geocodeRunCmd.Flags().StringVarP(
		&batchOptions.Column,
		"column",
		"c",
		"PCODE",
		"Name of the column holding the postcodes",
	)
	geocodeRunCmd.Flags().StringVarP(
		&batchOptions.Output,
		"output",
		"o",
		"",
		"Output file (.csv or .parquet). Defaults to <input>_geocoded.<ext>",
	)
	geocodeRunCmd.Flags().IntVar(
		&batchOptions.CheckpointEvery,
		"checkpoint-every",
		batch.DefaultCheckpointEvery,
		"Rows between progress snapshots, 0 disables them",
	)
	geocodeRunCmd.Flags().BoolVar(
		&noCache,
		"no-cache",
		false,
		"Neither read nor fill the postcode cache",
	)
	geocodeRunCmd.Flags().BoolVar(
		&batchOptions.DryRun,
		"dry-run",
		false,
		"Resolve postcodes without writing any output",
	)
	geocodeLookupCmd.Flags().BoolVar(
		&compare,
		"compare",
		false,
		"Query both providers directly and print the distance between their answers",
	)
}

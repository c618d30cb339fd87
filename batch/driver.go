// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch geocodes every postcode of a tabular file and writes the
// table back with latitude, longitude and geocoded columns appended.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jcodagnone/postcodes/cache"
	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/spatial"
	"github.com/jcodagnone/postcodes/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// DefaultCheckpointEvery is the number of rows between progress snapshots.
const DefaultCheckpointEvery = 50

const workTable = "geocode_rows"

var resultColumns = []string{"latitude", "longitude", "geocoded"}

// Options configures a batch run.
type Options struct {
	// Input is the path of the .csv or .parquet file to read
	Input string

	// Output is the path of the .csv or .parquet file to write
	Output string

	// Column holds the postcodes
	Column string

	// CheckpointEvery writes <Output>.temp every N rows; 0 disables it
	CheckpointEvery int

	// UseCache consults and fills the postcode cache
	UseCache bool

	// DryRun resolves postcodes but writes nothing
	DryRun bool
}

// Resolver is the part of the geocoder the driver depends on.
type Resolver interface {
	Resolve(ctx context.Context, postcode string) (geocoding.Result, bool)
	Successes(p geocoding.Provider) int
}

// Driver runs one batch.
type Driver struct {
	db       *sql.DB
	resolver Resolver
	cache    cache.Repository
	options  *Options
}

// NewDriver creates a driver. repo may be nil when the cache is not used.
func NewDriver(db *sql.DB, resolver Resolver, repo cache.Repository, options *Options) *Driver {
	if options == nil {
		options = &Options{}
	}

	return &Driver{
		db:       db,
		resolver: resolver,
		cache:    repo,
		options:  options,
	}
}

type record struct {
	row      int64
	postcode sql.NullString
}

// Run geocodes the input file. Errors reading or writing the table are
// fatal; postcodes that cannot be resolved are only counted.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	source, err := tableSource(d.options.Input)
	if err != nil {
		return nil, err
	}

	if !d.options.DryRun {
		if _, err := outputFormat(d.options.Output); err != nil {
			return nil, err
		}
	}

	// Temporary tables live in a single connection.
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	defer conn.Close()

	records, err := d.load(ctx, conn, source)
	if err != nil {
		return nil, err
	}

	log.Printf("Loaded %s rows from %s", textutils.FormatInt(int64(len(records))), d.options.Input)

	summary := &Summary{Total: len(records)}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Geocoding "+filepath.Base(d.options.Input)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	// Row updates and checkpoints must complete once a row is resolved,
	// even if ctx is cancelled meanwhile.
	store := context.WithoutCancel(ctx)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return d.abort(ctx, conn, summary, err)
		}

		if err := d.process(ctx, store, conn, i, rec, summary); err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return d.abort(ctx, conn, summary, err)
		}

		if bar != nil {
			_ = bar.Add(1)
		}

		if every := d.options.CheckpointEvery; every > 0 && (i+1)%every == 0 && !d.options.DryRun {
			log.Printf("Saving progress... (%d/%d successful)", summary.Geocoded, i+1)

			if err := export(store, conn, checkpointPath(d.options.Output), "csv"); err != nil {
				return nil, fmt.Errorf("saving checkpoint: %w", err)
			}
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	d.collectProviderSuccesses(summary)

	if d.options.DryRun {
		log.Println("Dry run - results not saved")

		return summary, nil
	}

	format, _ := outputFormat(d.options.Output)
	if err := export(ctx, conn, d.options.Output, format); err != nil {
		return nil, fmt.Errorf("saving results: %w", err)
	}

	log.Printf("Results saved to %s", d.options.Output)

	if err := os.Remove(checkpointPath(d.options.Output)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️  Removing checkpoint: %v", err)
	}

	return summary, nil
}

// load copies the input into the working table and returns its postcodes.
func (d *Driver) load(ctx context.Context, conn *sql.Conn, source string) ([]record, error) {
	columns, err := sourceColumns(ctx, conn, source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.options.Input, err)
	}

	if !slices.Contains(columns, d.options.Column) {
		return nil, fmt.Errorf("column %q not found. Available columns: %v", d.options.Column, columns)
	}

	if slices.Contains(resultColumns, strings.ToLower(d.options.Column)) {
		return nil, fmt.Errorf("postcode column %q collides with the result columns %v; rename it in %s",
			d.options.Column, resultColumns, d.options.Input)
	}

	projection := make([]string, 0, len(columns)+len(resultColumns)+1)
	projection = append(projection, "row_number() OVER () AS __row")

	for _, c := range columns {
		if !slices.Contains(resultColumns, strings.ToLower(c)) {
			projection = append(projection, quoteIdent(c))
		}
	}

	projection = append(projection,
		"CAST(NULL AS DOUBLE) AS latitude",
		"CAST(NULL AS DOUBLE) AS longitude",
		"false AS geocoded",
	)

	query := fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s AS SELECT %s FROM %s",
		workTable, strings.Join(projection, ", "), source)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("loading %s: %w", d.options.Input, err)
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(
		"SELECT __row, CAST(%s AS VARCHAR) FROM %s ORDER BY __row",
		quoteIdent(d.options.Column), workTable))
	if err != nil {
		return nil, fmt.Errorf("reading postcodes: %w", err)
	}
	defer rows.Close()

	var records []record

	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.row, &rec.postcode); err != nil {
			return nil, fmt.Errorf("reading postcodes: %w", err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// process resolves one row using ctx and stores the result using store.
func (d *Driver) process(ctx, store context.Context, conn *sql.Conn, i int, rec record, summary *Summary) error {
	n := summary.Total

	if !rec.postcode.Valid || textutils.IsBlank(rec.postcode.String) {
		summary.Skipped++

		log.Printf("Skipping empty postcode at row %d", i+1)

		return nil
	}

	postcode := textutils.NormalizePostcode(rec.postcode.String)

	point, fromCache, found := d.lookup(ctx, postcode)
	if !found {
		summary.Failed++

		log.Printf("[%d/%d] ✗ Failed to geocode: %s", i+1, n, postcode)

		return nil
	}

	if fromCache {
		summary.CacheHits++
	}

	if !point.Valid() {
		summary.OutOfRange++

		log.Printf("⚠️  [%d/%d] %s resolved outside valid coordinate ranges: %s", i+1, n, postcode, point)
	}

	if _, err := conn.ExecContext(store,
		fmt.Sprintf("UPDATE %s SET latitude = ?, longitude = ?, geocoded = true WHERE __row = ?", workTable),
		point.Lat, point.Lng, rec.row,
	); err != nil {
		return fmt.Errorf("storing row %d: %w", i+1, err)
	}

	summary.Geocoded++

	log.Printf("[%d/%d] ✓ %s -> %.6f, %.6f", i+1, n, postcode, point.Lat, point.Lng)

	return nil
}

// lookup consults the cache, then the resolver, saving fresh results.
func (d *Driver) lookup(ctx context.Context, postcode string) (spatial.Point, bool, bool) {
	useCache := d.options.UseCache && d.cache != nil

	if useCache {
		entry, err := d.cache.Get(postcode)
		switch {
		case err == nil:
			return entry.Point, true, true
		case !errors.Is(err, cache.ErrNotCached):
			log.Printf("⚠️  Reading cache for %s: %v", postcode, err)
		}
	}

	res, found := d.resolver.Resolve(ctx, postcode)
	if !found {
		return spatial.Point{}, false, false
	}

	if useCache && !d.options.DryRun {
		if err := d.cache.Save(&cache.Entry{
			Postcode: postcode,
			Point:    res.Point,
			Provider: res.Provider,
		}); err != nil {
			log.Printf("⚠️  Caching %s: %v", postcode, err)
		}
	}

	return res.Point, false, true
}

// abort keeps the partial results in the checkpoint file before returning.
func (d *Driver) abort(ctx context.Context, conn *sql.Conn, summary *Summary, cause error) (*Summary, error) {
	d.collectProviderSuccesses(summary)

	if d.options.DryRun {
		return summary, cause
	}

	// ctx is already done; the export must still be allowed to run.
	if err := export(context.WithoutCancel(ctx), conn, checkpointPath(d.options.Output), "csv"); err != nil {
		return summary, errors.Join(cause, fmt.Errorf("saving checkpoint: %w", err))
	}

	log.Printf("Interrupted - partial results saved to %s", checkpointPath(d.options.Output))

	return summary, cause
}

func (d *Driver) collectProviderSuccesses(summary *Summary) {
	summary.ProviderSuccesses = make(map[geocoding.Provider]int)
	for _, p := range geocoding.Providers() {
		summary.ProviderSuccesses[p] = d.resolver.Successes(p)
	}
}

func checkpointPath(output string) string {
	return output + ".temp"
}

func export(ctx context.Context, conn *sql.Conn, path, format string) error {
	options := "FORMAT csv, HEADER true"
	if format == "parquet" {
		options = "FORMAT parquet"
	}

	query := fmt.Sprintf("COPY (SELECT * EXCLUDE (__row) FROM %s ORDER BY __row) TO %s (%s)",
		workTable, quoteLiteral(path), options)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/jcodagnone/postcodes/utils/textutils"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the cache of resolved postcodes",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many postcodes are cached and who resolved them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := repo.Stats()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cached postcodes: %s\n", textutils.FormatInt(int64(stats.Total)))

		for _, p := range geocoding.Providers() {
			fmt.Fprintf(out, "  %s: %s\n", p.DisplayName(), textutils.FormatInt(int64(stats.ByProvider[p])))
		}

		fmt.Fprintf(out, "Distinct H3 cells: %s\n", textutils.FormatInt(int64(stats.DistinctCells)))

		return nil
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Dump every cached postcode as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := repo.List()
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal cache: %w", err)
		}

		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[0], err)
		}

		log.Printf("Exported %d postcodes to %s", len(entries), args[0])

		return nil
	},
}

var cacheForgetCmd = &cobra.Command{
	Use:   "forget <postcode>...",
	Short: "Remove postcodes from the cache so they are resolved again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		db, repo, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, arg := range args {
			postcode := textutils.NormalizePostcode(arg)

			deleted, err := repo.Delete(postcode)
			if err != nil {
				return err
			}

			if deleted {
				log.Printf("Forgot %s", postcode)
			} else {
				log.Printf("%s was not cached", postcode)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	cacheCmd.AddCommand(cacheForgetCmd)
}

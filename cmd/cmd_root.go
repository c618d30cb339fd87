// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

// envDefaults maps flags to the environment variables that provide their
// default when the flag is not given.
var envDefaults = map[string]string{
	"db-path":          "POSTCODES_DB_PATH",
	"user-agent":       "POSTCODES_USER_AGENT",
	"postcodes-io-url": "POSTCODES_IO_URL",
	"nominatim-url":    "NOMINATIM_URL",
}

var rootCmd = &cobra.Command{
	Use:   "postcodes",
	Short: "geocode postcodes using postcodes.io and Nominatim",
	Long: `
postcodes resolves postcodes to coordinates by alternating between
postcodes.io and OpenStreetMap Nominatim, falling back from one to the other
and taking a provider out of rotation after repeated failures.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnv(cmd.Flags()); err != nil {
			return err
		}

		if geocodingOptions.UserAgent == "" {
			geocodingOptions.UserAgent = fmt.Sprintf("postcodes/%s (+https://github.com/jcodagnone/postcodes)", Version)
		}

		return nil
	},
}

// loadEnv reads .env from the working directory when present and sets every
// flag in envDefaults that was not given on the command line. Variables
// already in the environment win over .env.
func loadEnv(flags *pflag.FlagSet) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	for flag, env := range envDefaults {
		f := flags.Lookup(flag)
		if f == nil || f.Changed {
			continue
		}

		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := f.Value.Set(v); err != nil {
				return fmt.Errorf("applying %s: %w", env, err)
			}
		}
	}

	return nil
}

var (
	geocodingOptions = &geocoding.Options{}
	dbPath           string
)

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dbPath, "db-path", "db", "Directory holding the postcode cache database")
	flags.StringVar(&geocodingOptions.UserAgent, "user-agent", "", "User-Agent sent to the providers")
	flags.StringVar(&geocodingOptions.PostcodesIOURL, "postcodes-io-url", geocoding.DefaultPostcodesIOURL, "postcodes.io base URL")
	flags.StringVar(&geocodingOptions.NominatimURL, "nominatim-url", geocoding.DefaultNominatimURL, "Nominatim base URL")
	flags.StringVar(&geocodingOptions.CountryCodes, "country-codes", geocoding.DefaultCountryCodes, "Country codes Nominatim searches are restricted to")
	flags.DurationVar(&geocodingOptions.Timeout, "timeout", geocoding.DefaultTimeout, "Timeout of each provider request")
	flags.BoolVar(&geocodingOptions.EnableHTTPTrace, "trace-http", false, "Display HTTP requests-responses")
	flags.BoolVar(&geocodingOptions.EnableHTTPBodyTrace, "trace-http-body", false, "Display HTTP requests-responses bodies")
	flags.BoolVarP(&geocodingOptions.Verbose, "verbose", "v", false, "Log every provider attempt")
}
